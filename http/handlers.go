package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"herhealth/classify"
	"herhealth/db"
	"herhealth/geo"
	"herhealth/llm"
	"herhealth/logging"
	"herhealth/messaging"
	"herhealth/ml"
	"herhealth/monitoring"
	"herhealth/weather"
)

// AlertsStreamPath WebSocket告警推送路径
const AlertsStreamPath = "/ws/alerts"

// Chatter 回答孕产健康问题
type Chatter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// WeatherSource 查询城市天气
type WeatherSource interface {
	Current(ctx context.Context, city string) (weather.Report, error)
}

// Geocoder 地址解析
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Location, error)
}

// AlertDispatcher 发送SOS告警
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert messaging.Alert) (messaging.Report, error)
}

// Store 持久化接口
type Store interface {
	Ping(ctx context.Context) error
	SavePrediction(ctx context.Context, p db.Prediction) error
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
	SaveAlert(ctx context.Context, a db.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]db.Alert, error)
}

// API 持有所有处理器依赖；未配置的可选依赖对应的路由返回503
type API struct {
	Risk  *classify.Service
	Fetal *classify.Service

	Chat    Chatter
	Weather WeatherSource
	Geo     Geocoder
	SOS     AlertDispatcher
	Store   Store
	Alerts  *monitoring.AlertHub
	Metrics *monitoring.MetricsCollector

	log *zap.SugaredLogger
}

// NewAPI 创建API
func NewAPI(risk, fetal *classify.Service) *API {
	return &API{Risk: risk, Fetal: fetal, log: logging.ComponentLogger("api")}
}

// Register 注册所有路由；limited 包裹对外发起调用的路由
func (a *API) Register(mux *http.ServeMux, limited Middleware) {
	if limited == nil {
		limited = func(h http.Handler) http.Handler { return h }
	}
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /test", a.handleTest)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /metrics", a.handleMetrics)
	mux.HandleFunc("GET /schema/{classifier}", a.handleSchema)

	mux.HandleFunc("POST /predict_risk", a.handlePredictRisk)
	mux.HandleFunc("POST /predict_fetal_health", a.handlePredictFetal)
	mux.HandleFunc("GET /training_log", a.handleTrainingLog)

	mux.Handle("POST /sos", limited(http.HandlerFunc(a.handleSOS)))
	mux.HandleFunc("GET /alerts", a.handleAlerts)
	mux.Handle("POST /chat", limited(http.HandlerFunc(a.handleChat)))
	mux.HandleFunc("GET /weather", a.handleWeather)
	mux.HandleFunc("GET /geocode", a.handleGeocode)

	if a.Alerts != nil {
		mux.Handle("GET "+AlertsStreamPath, a.Alerts)
	}
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to HerHealth API"})
}

func (a *API) handleTest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Server is alive!"})
}

type classifierHealth struct {
	State      string      `json:"state"`
	Error      string      `json:"error,omitempty"`
	Metrics    *ml.Metrics `json:"metrics,omitempty"`
	DataPoints int         `json:"data_points,omitempty"`
	TrainedAt  *time.Time  `json:"trained_at,omitempty"`
}

func (a *API) classifiers() []*classify.Service {
	out := make([]*classify.Service, 0, 2)
	for _, svc := range []*classify.Service{a.Risk, a.Fetal} {
		if svc != nil {
			out = append(out, svc)
		}
	}
	return out
}

func (a *API) classifier(name string) *classify.Service {
	for _, svc := range a.classifiers() {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	classifiers := make(map[string]classifierHealth)
	for _, svc := range a.classifiers() {
		h := classifierHealth{State: svc.State().String()}
		if err := svc.Err(); err != nil {
			h.Error = err.Error()
		}
		if art := svc.Artifact(); art != nil {
			metrics := art.Metrics
			trainedAt := art.TrainedAt
			h.Metrics = &metrics
			h.DataPoints = art.DataPoints
			h.TrainedAt = &trainedAt
		}
		if svc.State() != classify.StateReady {
			status = "degraded"
		}
		classifiers[svc.Name()] = h
	}

	response := map[string]interface{}{
		"status":      status,
		"classifiers": classifiers,
	}
	if a.Store != nil {
		storeStatus := "ok"
		if err := a.Store.Ping(r.Context()); err != nil {
			a.log.Warnw("store ping failed", logging.FieldError, err)
			storeStatus = "unavailable"
			status = "degraded"
			response["status"] = status
		}
		response["store"] = storeStatus
	}
	if a.SOS != nil {
		if d, ok := a.SOS.(interface{ Simulated() bool }); ok {
			response["sos_simulated"] = d.Simulated()
		}
	}
	respondJSON(w, http.StatusOK, response)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.Metrics == nil {
		respondError(w, http.StatusServiceUnavailable, "metrics are not enabled")
		return
	}
	for _, svc := range a.classifiers() {
		ready := 0.0
		if svc.State() == classify.StateReady {
			ready = 1
		}
		a.Metrics.SetGauge("classifier_ready", ready, map[string]string{"classifier": svc.Name()})
	}
	if a.Alerts != nil {
		a.Metrics.SetGauge("alert_stream_clients", float64(a.Alerts.Clients()), nil)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, a.Metrics.ExportPrometheus())
}

func (a *API) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("classifier")
	svc := a.classifier(name)
	if svc == nil {
		respondError(w, http.StatusNotFound, "unknown classifier: "+name)
		return
	}
	respondJSON(w, http.StatusOK, svc.Schema())
}

func (a *API) handlePredictRisk(w http.ResponseWriter, r *http.Request) {
	result, ok := a.predict(w, r, a.Risk, classify.RiskClassifier)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"risk_level":      result.Label,
		"recommendations": result.Advice,
	})
}

func (a *API) handlePredictFetal(w http.ResponseWriter, r *http.Request) {
	result, ok := a.predict(w, r, a.Fetal, classify.FetalClassifier)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"fetal_health": result.Label})
}

// predict 解码请求、预测并写入审计记录；失败时已写出错误响应
func (a *API) predict(w http.ResponseWriter, r *http.Request, svc *classify.Service, name string) (classify.Result, bool) {
	if svc == nil {
		respondError(w, http.StatusServiceUnavailable, name+" model is not available")
		return classify.Result{}, false
	}

	var body map[string]*float64
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return classify.Result{}, false
	}
	payload := make(map[string]float64, len(body))
	for k, v := range body {
		if v != nil {
			payload[k] = *v
		}
	}

	result, err := svc.PredictPayload(payload)
	if err != nil {
		a.count("prediction_errors_total", map[string]string{"classifier": name})
		var verr *classify.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, classify.ErrNotInitialized):
			respondError(w, http.StatusServiceUnavailable, name+" model is not available")
		default:
			logging.FromContext(r.Context()).Errorw("prediction failed",
				logging.FieldClassifier, name, logging.FieldError, err)
			respondError(w, http.StatusInternalServerError, "error in "+name+" prediction")
		}
		return classify.Result{}, false
	}

	a.count("predictions_total", map[string]string{"classifier": name, "label": result.Label})
	if a.Store != nil {
		record := db.Prediction{
			Classifier: name,
			Label:      result.Label,
			Class:      result.Class,
			Confidence: result.Confidence,
			Features:   payload,
			RequestID:  logging.RequestID(r.Context()),
		}
		if err := a.Store.SavePrediction(r.Context(), record); err != nil {
			logging.FromContext(r.Context()).Warnw("failed to audit prediction",
				logging.FieldClassifier, name, logging.FieldError, err)
		}
	}
	return result, true
}

func (a *API) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	logs, err := a.Store.LoadTrainingLog(r.Context())
	if err != nil {
		a.log.Errorw("failed to load training log", logging.FieldError, err)
		respondError(w, http.StatusInternalServerError, "failed to load training log")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

type sosRequest struct {
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	EmergencyContacts []string `json:"emergency_contacts"`
	Address           string   `json:"address"`
}

func (a *API) handleSOS(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if a.SOS == nil {
		respondError(w, http.StatusServiceUnavailable, "SOS alerts are not available")
		return
	}

	var req sosRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	address := strings.TrimSpace(req.Address)
	if req.Latitude == nil || req.Longitude == nil {
		if address == "" {
			respondError(w, http.StatusBadRequest, "latitude and longitude, or an address, are required")
			return
		}
		if a.Geo == nil {
			respondError(w, http.StatusServiceUnavailable, "geocoding is not available")
			return
		}
		loc, err := a.Geo.Geocode(r.Context(), address)
		if err != nil {
			if errors.Is(err, geo.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "address could not be located")
				return
			}
			log.Errorw("geocoding failed", logging.FieldAddress, address, logging.FieldError, err)
			respondError(w, http.StatusBadGateway, "geocoding service failed")
			return
		}
		req.Latitude, req.Longitude = &loc.Latitude, &loc.Longitude
	}

	alert := messaging.Alert{Latitude: *req.Latitude, Longitude: *req.Longitude, Contacts: req.EmergencyContacts}
	report, err := a.SOS.Dispatch(r.Context(), alert)
	if err != nil {
		if errors.Is(err, messaging.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Errorw("failed to process SOS request", logging.FieldError, err)
		respondError(w, http.StatusInternalServerError, "failed to send SOS alert")
		return
	}
	a.count("sos_alerts_total", map[string]string{"simulated": strconv.FormatBool(report.Simulated)})

	if a.Store != nil {
		results := deliveryResults(log, report.AlertID, report.Deliveries)
		record := db.Alert{
			AlertID:      report.AlertID,
			Latitude:     alert.Latitude,
			Longitude:    alert.Longitude,
			Address:      address,
			Recipients:   len(alert.Contacts),
			Simulated:    report.Simulated,
			AllDelivered: report.AllDelivered,
			Results:      results,
		}
		// 请求可能已被取消，但告警已经发出，记录必须保留
		if err := a.Store.SaveAlert(context.WithoutCancel(r.Context()), record); err != nil {
			log.Errorw("failed to store SOS alert", logging.FieldAlertID, report.AlertID, logging.FieldError, err)
		}
	}
	if a.Alerts != nil {
		event := map[string]interface{}{
			"alert_id":      report.AlertID,
			"latitude":      alert.Latitude,
			"longitude":     alert.Longitude,
			"address":       address,
			"simulated":     report.Simulated,
			"all_delivered": report.AllDelivered,
			"sent_messages": report.Deliveries,
		}
		if err := a.Alerts.Publish(monitoring.SOSAlert, event); err != nil {
			log.Warnw("failed to broadcast SOS alert", logging.FieldAlertID, report.AlertID, logging.FieldError, err)
		}
	}

	respondJSON(w, http.StatusOK, report)
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 || l > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = l
	}
	alerts, err := a.Store.RecentAlerts(r.Context(), limit)
	if err != nil {
		a.log.Errorw("failed to load alerts", logging.FieldError, err)
		respondError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

type chatRequest struct {
	Question string `json:"question"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	if a.Chat == nil {
		respondError(w, http.StatusServiceUnavailable, "chat assistant is not available")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	answer, err := a.Chat.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyQuestion) {
			respondError(w, http.StatusBadRequest, "question is required")
			return
		}
		logging.FromContext(r.Context()).Errorw("chat request failed", logging.FieldError, err)
		respondError(w, http.StatusBadGateway, "error processing chat request")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (a *API) handleWeather(w http.ResponseWriter, r *http.Request) {
	if a.Weather == nil {
		respondError(w, http.StatusServiceUnavailable, "weather is not available")
		return
	}
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		respondError(w, http.StatusBadRequest, "city is required")
		return
	}
	report, err := a.Weather.Current(r.Context(), city)
	if err != nil {
		switch {
		case errors.Is(err, weather.ErrCityNotFound):
			respondError(w, http.StatusNotFound, "city not found")
		case errors.Is(err, weather.ErrNotConfigured):
			respondError(w, http.StatusServiceUnavailable, "weather is not available")
		default:
			logging.FromContext(r.Context()).Errorw("weather lookup failed", "city", city, logging.FieldError, err)
			respondError(w, http.StatusBadGateway, "weather service failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (a *API) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if a.Geo == nil {
		respondError(w, http.StatusServiceUnavailable, "geocoding is not available")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		respondError(w, http.StatusBadRequest, "address is required")
		return
	}
	loc, err := a.Geo.Geocode(r.Context(), address)
	if err != nil {
		if errors.Is(err, geo.ErrNotFound) {
			respondError(w, http.StatusNotFound, "address not found")
			return
		}
		logging.FromContext(r.Context()).Errorw("geocoding failed", logging.FieldAddress, address, logging.FieldError, err)
		respondError(w, http.StatusBadGateway, "geocoding service failed")
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

func (a *API) count(name string, labels map[string]string) {
	if a.Metrics != nil {
		a.Metrics.IncrCounter(name, 1, labels)
	}
}

// deliveryResults 把投递结果编码为 JSON，失败时记录日志并退回空数组
func deliveryResults(log *zap.SugaredLogger, alertID string, deliveries interface{}) json.RawMessage {
	results, err := json.Marshal(deliveries)
	if err != nil {
		log.Warnw("failed to encode SOS delivery results", logging.FieldAlertID, alertID, logging.FieldError, err)
		return json.RawMessage("[]")
	}
	return results
}

// decodeJSON 解码请求体，错误信息可直接返回给客户端
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return errors.Newf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return errors.New("malformed JSON body")
		}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Logger.Warnw("failed to encode JSON response", logging.FieldError, err)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
