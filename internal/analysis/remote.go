package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/pagetools/internal/decode"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/resilience"
)

// RemoteConfig configures a RemoteBackend
type RemoteConfig struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Breaker           resilience.Settings
}

// StatusError is a non-2xx reply from the inference service
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference service returned %d", e.Code)
	}
	return fmt.Sprintf("inference service returned %d: %s", e.Code, e.Message)
}

// callerFault reports whether err was caused by the request rather than the
// service, so it does not count against the breaker
func callerFault(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// RemoteBackend calls an HTTP inference service: POST {base}/models/{model}
type RemoteBackend struct {
	client  *resty.Client
	base    string
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewRemoteBackend creates a backend for the service at cfg.BaseURL
func NewRemoteBackend(cfg RemoteConfig, log *logging.Logger) (*RemoteBackend, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid inference url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	log = logging.OrNop(log).Named("inference")

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	client := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetLogger(log.Sugar())
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	settings := cfg.Breaker
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || callerFault(err)
		}
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn("Inference breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}

	return &RemoteBackend{
		client:  client,
		base:    base.String(),
		limiter: limiter,
		breaker: resilience.New("inference", settings),
		log:     log,
	}, nil
}

// WithMetrics attaches a metrics collector
func (b *RemoteBackend) WithMetrics(m *monitoring.Metrics) *RemoteBackend {
	b.metrics = m
	return b
}

// Breaker exposes the circuit breaker state for health reporting
func (b *RemoteBackend) Breaker() *resilience.Breaker {
	return b.breaker
}

// Infer posts the request to the model endpoint and returns the JSON reply
// in canonical form
func (b *RemoteBackend) Infer(ctx context.Context, req InferenceRequest) ([]byte, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("no model for operation %s", req.Operation)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	timer := monitoring.NewTimer(b.metrics, req.Operation)
	out, err := resilience.Call(b.breaker, func() ([]byte, error) {
		return b.post(ctx, req)
	})
	if err != nil {
		status := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			status = "rejected"
		}
		timer.Stop(status)
		b.log.Warn("Inference call failed",
			zap.String("operation", req.Operation),
			zap.String("model", req.Model),
			zap.Error(err))
		return nil, err
	}
	timer.Stop("ok")
	return out, nil
}

func (b *RemoteBackend) post(ctx context.Context, req InferenceRequest) ([]byte, error) {
	r := b.client.R().SetContext(ctx)

	if req.Image != nil {
		contentType := req.ImageType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		r.SetHeader("Content-Type", contentType).SetBody(req.Image)
	} else {
		body, err := sonic.Marshal(textBody(req))
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := r.Post(b.base + "/models/" + req.Model)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: serviceMessage(resp.Body())}
	}

	out, err := decode.CanonicalJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("inference reply is not json: %w", err)
	}
	return out, nil
}

// textBody builds the JSON request for a text operation
func textBody(req InferenceRequest) map[string]interface{} {
	params := make(map[string]interface{}, len(req.Parameters))
	for k, v := range req.Parameters {
		params[k] = typed(v)
	}

	body := map[string]interface{}{}
	switch {
	case req.Parameters["question"] != "":
		body["inputs"] = map[string]string{
			"question": req.Parameters["question"],
			"context":  req.Text,
		}
		delete(params, "question")
	case req.Parameters["candidate_labels"] != "":
		body["inputs"] = req.Text
		labels := strings.Split(req.Parameters["candidate_labels"], ",")
		for i := range labels {
			labels[i] = strings.TrimSpace(labels[i])
		}
		params["candidate_labels"] = labels
	default:
		body["inputs"] = req.Text
	}
	if len(params) > 0 {
		body["parameters"] = params
	}
	return body
}

// typed converts numeric and boolean parameter strings to JSON values
func typed(v string) interface{} {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// serviceMessage extracts {"error": "..."} from an error reply
func serviceMessage(body []byte) string {
	var reply struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(body, &reply); err == nil && reply.Error != "" {
		return reply.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
