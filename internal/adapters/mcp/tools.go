package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/jbctechsolutions/tokenpad/internal/application/translation"
	domainErrors "github.com/jbctechsolutions/tokenpad/internal/domain/errors"
	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	domainTranslation "github.com/jbctechsolutions/tokenpad/internal/domain/translation"
)

// Tool names.
const (
	ToolTranslateText         = "translate_text"
	ToolGetSupportedLanguages = "get_supported_languages"
	ToolDetectLanguage        = "detect_language"
)

// Validation messages returned to callers.
const (
	msgEmptyText         = "文本内容不能为空"
	msgUnsupportedSource = "不支持的源语言: %s"
	msgUnsupportedTarget = "不支持的目标语言: %s"
	msgTranslationFailed = "翻译过程中发生错误: %s"
	msgInvalidArguments  = "参数格式错误: %s"
)

// TranslateArgs are the arguments of translate_text.
type TranslateArgs struct {
	Text           string `json:"text" jsonschema:"description=需要翻译的文本内容"`
	SourceLanguage string `json:"source_language" jsonschema:"description=源语言代码"`
	TargetLanguage string `json:"target_language" jsonschema:"description=目标语言代码"`
}

// JSONSchemaExtend restricts the language fields to the supported codes.
func (TranslateArgs) JSONSchemaExtend(s *jsonschema.Schema) {
	codes := make([]any, 0, len(domainTranslation.Supported()))
	for _, l := range domainTranslation.Supported() {
		codes = append(codes, l.Code)
	}
	for _, field := range []string{"source_language", "target_language"} {
		if prop, ok := s.Properties.Get(field); ok {
			prop.Enum = codes
		}
	}
}

// LanguagesArgs are the arguments of get_supported_languages.
type LanguagesArgs struct{}

// DetectArgs are the arguments of detect_language.
type DetectArgs struct {
	Text string `json:"text" jsonschema:"description=需要检测语言的文本"`
}

// RegisterTranslationTools registers the translation tool set backed by svc.
func RegisterTranslationTools(r *Registry, svc *translation.Service) error {
	tools := []struct {
		name        string
		description string
		args        any
		handler     Handler
	}{
		{
			name:        ToolTranslateText,
			description: "翻译文本内容到指定语言。支持多种语言之间的互译，包括中文、英文、日文、法文、德文、西班牙文和俄文。",
			args:        &TranslateArgs{},
			handler:     translateHandler(svc),
		},
		{
			name:        ToolGetSupportedLanguages,
			description: "获取支持的语言列表及其代码",
			args:        &LanguagesArgs{},
			handler:     languagesHandler(svc),
		},
		{
			name:        ToolDetectLanguage,
			description: "检测文本的语言类型",
			args:        &DetectArgs{},
			handler:     detectHandler(svc),
		},
	}

	for _, t := range tools {
		schema, err := SchemaFor(t.args)
		if err != nil {
			return err
		}
		tool, err := domainMCP.NewTool(t.name, t.description, schema)
		if err != nil {
			return err
		}
		if err := r.Register(tool, t.handler); err != nil {
			return err
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return domainMCP.NewInvalidParams(fmt.Sprintf(msgInvalidArguments, err.Error()))
	}
	return nil
}

func translateHandler(svc *translation.Service) Handler {
	return func(ctx context.Context, raw json.RawMessage) (ToolOutput, error) {
		var args TranslateArgs
		if err := decodeArgs(raw, &args); err != nil {
			return ToolOutput{}, err
		}

		res, err := svc.Translate(ctx, args.Text, args.SourceLanguage, args.TargetLanguage)
		if err != nil {
			return ToolOutput{}, translationError(err)
		}

		return ToolOutput{
			Text:        domainTranslation.ResultText(res.Original, res.Translated, res.Source, res.Target),
			RequestText: domainTranslation.TranslateRequestText(res.Original, args.SourceLanguage, args.TargetLanguage),
		}, nil
	}
}

func languagesHandler(svc *translation.Service) Handler {
	return func(ctx context.Context, _ json.RawMessage) (ToolOutput, error) {
		return ToolOutput{
			Text:        svc.Interfere(ctx, domainTranslation.LanguagesText(), padding.TargetAll),
			RequestText: domainTranslation.LanguagesRequestText,
		}, nil
	}
}

func detectHandler(svc *translation.Service) Handler {
	return func(ctx context.Context, raw json.RawMessage) (ToolOutput, error) {
		var args DetectArgs
		if err := decodeArgs(raw, &args); err != nil {
			return ToolOutput{}, err
		}

		d, err := svc.Detect(args.Text)
		if err != nil {
			return ToolOutput{}, translationError(err)
		}

		text := strings.TrimSpace(args.Text)
		return ToolOutput{
			Text:        svc.Interfere(ctx, domainTranslation.DetectionText(text, d), padding.TargetAll),
			RequestText: domainTranslation.DetectRequestText(text),
		}, nil
	}
}

// translationError maps service errors onto protocol errors.
func translationError(err error) error {
	var langErr *translation.LanguageError
	switch {
	case errors.Is(err, domainErrors.ErrEmptyText):
		return domainMCP.NewInvalidParams(msgEmptyText)
	case errors.As(err, &langErr) && langErr.Role == translation.RoleSource:
		return domainMCP.NewInvalidParams(fmt.Sprintf(msgUnsupportedSource, langErr.Code))
	case errors.As(err, &langErr):
		return domainMCP.NewInvalidParams(fmt.Sprintf(msgUnsupportedTarget, langErr.Code))
	default:
		return domainMCP.NewInternalError(fmt.Sprintf(msgTranslationFailed, err.Error()))
	}
}
