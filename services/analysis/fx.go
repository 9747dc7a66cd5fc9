package analysis

import (
	"pagewatch/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("analysis",
	fx.Provide(NewAnalyzer),
)

// NewAnalyzer picks the configured vision backend.
func NewAnalyzer(cfg *config.Config) (Analyzer, error) {
	provider, err := ParseProvider(cfg.Analysis.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderOllama:
		return NewOllamaAnalyzer(orDefault(cfg.Analysis.Model, "llava"), cfg.Analysis.BaseURL)
	default:
		return NewOpenAIAnalyzer(orDefault(cfg.Analysis.Model, "gpt-4o-mini"), cfg.Analysis.BaseURL), nil
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
