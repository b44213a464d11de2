package relay

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clown-builder-backend/internal/llm"
	"clown-builder-backend/internal/metrics"
	"clown-builder-backend/internal/types"
	"clown-builder-backend/pkg/logger"
)

type Options struct {
	DefaultAPIKey string
	DefaultModel  string
	// Models a request may pick through preferredModel. Empty means requests
	// always get DefaultModel.
	AllowedModels   []string
	UpstreamTimeout time.Duration
	Metrics         *metrics.RelayMetrics
}

// Service turns one EditRequest into one ActionEnvelope with a single
// upstream call. It is safe for concurrent use: it holds only read-only
// configuration.
type Service struct {
	gen           llm.Generator
	prompt        PromptSpec
	defaultKey    string
	defaultModel  string
	allowedModels map[string]struct{}
	timeout       time.Duration
	metrics       *metrics.RelayMetrics
	tracer        trace.Tracer
}

func NewService(gen llm.Generator, prompt PromptSpec, opts Options) *Service {
	allowed := make(map[string]struct{}, len(opts.AllowedModels))
	for _, m := range opts.AllowedModels {
		if m = strings.TrimSpace(m); m != "" {
			allowed[m] = struct{}{}
		}
	}
	return &Service{
		gen:           gen,
		prompt:        prompt,
		defaultKey:    strings.TrimSpace(opts.DefaultAPIKey),
		defaultModel:  strings.TrimSpace(opts.DefaultModel),
		allowedModels: allowed,
		timeout:       opts.UpstreamTimeout,
		metrics:       opts.Metrics,
		tracer:        otel.Tracer("clown-relay"),
	}
}

// ResolveCredential picks the request key when it is non-blank, else the
// server default. The second return names the source for logs and spans.
func (s *Service) ResolveCredential(override string) (string, string, error) {
	if k := strings.TrimSpace(override); k != "" {
		return k, "request", nil
	}
	if s.defaultKey != "" {
		return s.defaultKey, "server", nil
	}
	return "", "", ErrMissingCredential
}

func (s *Service) resolveModel(preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		return s.defaultModel
	}
	if _, ok := s.allowedModels[preferred]; ok {
		return preferred
	}
	return s.defaultModel
}

// Process runs one relay round trip. Errors are either ErrMissingCredential
// or *UpstreamError; unusable model output is absorbed into the fallback
// envelope.
func (s *Service) Process(ctx context.Context, req types.EditRequest) (types.ActionEnvelope, error) {
	model := s.resolveModel(req.PreferredModel)

	apiKey, source, err := s.ResolveCredential(req.APIKey)
	if err != nil {
		s.metrics.RecordOutcome(ctx, model, metrics.OutcomeMissingCredential)
		return types.ActionEnvelope{}, err
	}

	call := llm.Call{
		APIKey: apiKey,
		Model:  model,
		System: s.prompt.System,
		Prompt: s.prompt.BuildPrompt(req.UserMessage, req.CurrentElements),
		Config: s.prompt.Generation,
	}

	raw, err := s.generate(ctx, call, source)
	if err != nil {
		logger.Errorf("upstream call failed (model=%s, credential=%s): %v", model, source, err)
		s.metrics.RecordOutcome(ctx, model, metrics.OutcomeUpstreamError)
		return types.ActionEnvelope{}, &UpstreamError{Err: err}
	}

	env, stage := Normalize(raw)
	switch stage {
	case StageFallback:
		logger.Errorf("could not parse model output as an action envelope (model=%s): %q", model, raw)
		s.metrics.RecordOutcome(ctx, model, metrics.OutcomeFallback)
	case StageExtracted:
		logger.Debugf("recovered action envelope from surrounding text (model=%s)", model)
		s.metrics.RecordOutcome(ctx, model, metrics.OutcomeExtracted)
	default:
		s.metrics.RecordOutcome(ctx, model, metrics.OutcomeParsed)
	}
	logger.Infof("processed edit request: model=%s actions=%d parse=%s", model, len(env.Actions), stage)
	return env, nil
}

func (s *Service) generate(ctx context.Context, call llm.Call, source string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "relay.generate",
		trace.WithAttributes(
			attribute.String("llm.model", call.Model),
			attribute.String("llm.credential_source", source),
			attribute.Int("llm.prompt_chars", len(call.Prompt)),
		),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.gen.Generate(ctx, call)
	s.metrics.RecordUpstream(ctx, call.Model, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream call failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(raw)))
	return raw, nil
}
