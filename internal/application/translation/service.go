// Package translation serves the translation tools: backend selection with a
// dictionary fallback, language detection and the legacy interference mode.
package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/tokenpad/internal/domain/errors"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	domainTranslation "github.com/jbctechsolutions/tokenpad/internal/domain/translation"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// Language roles used in LanguageError.
const (
	RoleSource = "source"
	RoleTarget = "target"
)

// LanguageError reports an unsupported language code.
type LanguageError struct {
	Role string
	Code string
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("unsupported %s language: %s", e.Role, e.Code)
}

// Unwrap returns ErrUnsupportedLanguage.
func (e *LanguageError) Unwrap() error {
	return domainErrors.ErrUnsupportedLanguage
}

// InterferenceConfig controls the legacy fixed-density filler mode.
type InterferenceConfig struct {
	Enabled bool
	Level   padding.InterferenceLevel
	Target  padding.InterferenceTarget
}

// Result is a finished translation.
type Result struct {
	Original   string `json:"original_text"`
	Translated string `json:"translated_text"`
	Source     string `json:"source_language"`
	Target     string `json:"target_language"`
	Backend    string `json:"backend"`
}

// Service translates text. It is safe for concurrent use.
type Service struct {
	dict      *domainTranslation.Dictionary
	remote    ports.Translator
	scatterer *padding.Scatterer
	logger    *logging.Logger

	mu             sync.RWMutex
	interference   InterferenceConfig
	fillingEnabled func() bool
}

// Option configures a Service.
type Option func(*Service)

// WithRemote sets the remote backend tried before the dictionary.
func WithRemote(t ports.Translator) Option {
	return func(s *Service) { s.remote = t }
}

// WithInterference enables the legacy interference mode. fillingEnabled
// reports whether context filling is active; interference only applies
// when it is not.
func WithInterference(cfg InterferenceConfig, scatterer *padding.Scatterer, fillingEnabled func() bool) Option {
	return func(s *Service) {
		s.interference = cfg
		s.scatterer = scatterer
		s.fillingEnabled = fillingEnabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service backed by dict.
func NewService(dict *domainTranslation.Dictionary, opts ...Option) *Service {
	if dict == nil {
		dict = domainTranslation.DefaultDictionary()
	}
	s := &Service{
		dict:           dict,
		logger:         logging.Default(),
		fillingEnabled: func() bool { return false },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInterference swaps the interference settings.
func (s *Service) SetInterference(cfg InterferenceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interference = cfg
}

// Validate checks the arguments of a translation and returns the
// normalized language codes.
func Validate(text, source, target string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", domainErrors.NewError(domainErrors.CodeValidation, "text", domainErrors.ErrEmptyText)
	}
	src, err := domainTranslation.Lookup(source)
	if err != nil {
		return "", "", &LanguageError{Role: RoleSource, Code: source}
	}
	tgt, err := domainTranslation.Lookup(target)
	if err != nil {
		return "", "", &LanguageError{Role: RoleTarget, Code: target}
	}
	return src.Code, tgt.Code, nil
}

// Translate converts text between two supported languages. The remote
// backend is tried first when configured; any failure falls back to the
// dictionary. Same-language requests return text unchanged.
func (s *Service) Translate(ctx context.Context, text, source, target string) (Result, error) {
	text = strings.TrimSpace(text)
	src, tgt, err := Validate(text, source, target)
	if err != nil {
		return Result{}, err
	}

	res := Result{Original: text, Source: src, Target: tgt}
	if src == tgt {
		res.Translated = text
		res.Backend = "identity"
		return res, nil
	}

	if s.remote != nil {
		translated, err := s.remote.Translate(ctx, text, src, tgt)
		if err == nil {
			res.Translated = translated
			res.Backend = s.remote.Name()
		} else {
			s.logger.WarnContext(ctx, "remote translation failed, using dictionary",
				"backend", s.remote.Name(),
				"error", err.Error(),
			)
		}
	}

	if res.Backend == "" {
		res.Translated = s.dict.Translate(text, src, tgt)
		res.Backend = "dictionary"
	}

	res.Translated = s.Interfere(ctx, res.Translated, padding.TargetTranslation)
	return res, nil
}

// Interfere applies the legacy filler runs to output of the given kind when
// interference is enabled, targets that kind and context filling is off.
// Non-translation output passes TargetAll as its kind.
func (s *Service) Interfere(ctx context.Context, text string, kind padding.InterferenceTarget) string {
	s.mu.RLock()
	cfg := s.interference
	s.mu.RUnlock()

	if !cfg.Enabled || s.scatterer == nil || s.fillingEnabled() {
		return text
	}
	if !cfg.Target.Applies(kind) {
		return text
	}

	out := s.scatterer.Interfere(text, cfg.Level)
	s.logger.InfoContext(ctx, "interference applied",
		"level", string(cfg.Level),
		"filler_count", padding.CountFiller(out),
	)
	return out
}

// Detect guesses the language of text.
func (s *Service) Detect(text string) (domainTranslation.Detection, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domainTranslation.Detection{}, domainErrors.NewError(domainErrors.CodeValidation, "text", domainErrors.ErrEmptyText)
	}
	return domainTranslation.Detect(text), nil
}

// Languages returns the supported languages.
func (s *Service) Languages() []domainTranslation.Language {
	return domainTranslation.Supported()
}
