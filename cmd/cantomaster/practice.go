package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/device"
	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/adapter"
	"github.com/MrWong99/cantomaster/internal/tui"
	"github.com/MrWong99/cantomaster/internal/usage"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

var (
	practiceAutoPlay     bool
	practiceAutoPlayNext bool
	practiceInput        string
	practiceOutput       string
	practiceSentences    string
)

func newPracticeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Practice in the terminal with the local microphone and speakers",
		Args:  cobra.NoArgs,
		RunE:  runPracticeCmd,
	}
	cmd.Flags().BoolVar(&practiceAutoPlay, "auto-play", true, "speak each sentence when it is shown")
	cmd.Flags().BoolVar(&practiceAutoPlayNext, "auto-play-next", false, "advance after each sentence has been spoken")
	cmd.Flags().StringVar(&practiceInput, "input", "", "capture device name (substring match)")
	cmd.Flags().StringVar(&practiceOutput, "output", "", "playback device name (substring match)")
	cmd.Flags().StringVar(&practiceSentences, "sentences", "", "YAML sentence bank replacing the built-in one")
	return cmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	prefs, err := config.LoadPreferences(config.DefaultPreferencesPath())
	if err != nil {
		return err
	}
	prefs.Apply(cfg)
	applyPracticeFlags(cmd, cfg)

	// The terminal belongs to the TUI, so logs go to a file.
	logPath := filepath.Join(config.XDGDataHome(), "cantomaster", "practice.log")
	logFile, err := openLogFile(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger, _ := newLogger(logFile, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	bank, err := loadPracticeBank(cfg.Practice.SentencesFile)
	if err != nil {
		return err
	}

	metrics := observe.DefaultMetrics()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	defer closeProviders(providers.STT, providers.TTS)

	host, err := device.NewHost()
	if err != nil {
		return fmt.Errorf("open audio devices: %w", err)
	}
	defer host.Close()
	speaker := device.NewSpeaker(host, cfg.Devices.Output)

	opts := []speech.Option{
		speech.WithLocale(cfg.Speech.Locale),
		speech.WithRate(cfg.Speech.Rate),
		speech.WithMetrics(metrics),
		speech.WithMicrophone(device.NewMicrophone(host, audio.Recognition, cfg.Devices.Input)),
	}
	if len(cfg.Speech.VoiceHints) > 0 {
		opts = append(opts, speech.WithVoiceHints(cfg.Speech.VoiceHints...))
	}
	if providers.TTS != nil {
		opts = append(opts, speech.WithSynthesizer(adapter.NewSynthesizer(providers.TTS, speaker)))
	} else {
		logErrf("No server-side synthesis engine configured; sentences will not be spoken.\n")
	}
	if providers.STT != nil {
		opts = append(opts, speech.WithRecognizer(adapter.NewRecognizer(providers.STT)))
	} else {
		logErrf("No server-side recognition engine configured; readings cannot be scored.\n")
	}
	ctrl := speech.New(opts...)
	defer ctrl.Close()

	historyPath := config.DefaultHistoryPath()
	store, err := usage.OpenHistory(historyPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logErrf("failed to close history: %v\n", cerr)
		}
	}()

	model := tui.NewPractice(tui.PracticeConfig{
		Controller:    ctrl,
		Catalog:       sentence.NewCatalog(bank),
		Store:         store,
		Player:        speaker,
		Metrics:       metrics,
		AutoPlay:      cfg.Practice.AutoPlayEnabled(),
		AutoPlayNext:  cfg.Practice.AutoPlayNext,
		AutoNextDelay: cfg.Practice.AutoNextDelay,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// applyPracticeFlags lets explicit flags win over the config file and
// preferences.
func applyPracticeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("auto-play") {
		v := practiceAutoPlay
		cfg.Practice.AutoPlay = &v
	}
	if flags.Changed("auto-play-next") {
		cfg.Practice.AutoPlayNext = practiceAutoPlayNext
	}
	if flags.Changed("input") {
		cfg.Devices.Input = practiceInput
	}
	if flags.Changed("output") {
		cfg.Devices.Output = practiceOutput
	}
	if flags.Changed("sentences") {
		cfg.Practice.SentencesFile = practiceSentences
	}
}

func loadPracticeBank(path string) (*sentence.Bank, error) {
	if path == "" {
		return sentence.Default(), nil
	}
	b, err := sentence.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load sentences: %w", err)
	}
	return b, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func closeProviders(ps ...any) {
	for _, p := range ps {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}
