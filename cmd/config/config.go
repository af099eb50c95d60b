package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/player"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/spf13/viper"
)

// Read the config file into viper on top of the defaults.
// A missing config file is not an error; every key has a default.
func LoadConfig(configFilePath string) error {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
			return nil
		}
		slog.Error("error during config read", "err", err)
		return err
	}
	return nil
}

type Config struct {
	LogLevel string
	LogFile  string

	Output          audiodevice.DeviceProperties
	Buffer          time.Duration
	BlockFrames     int
	ResampleQuality int

	Sink         string
	OutputFile   string
	DevicePeriod time.Duration

	FFTSize int
	Bars    int
	Refresh time.Duration

	Volume   float32
	SeekStep time.Duration
	Theme    int
}

// Build the typed config from viper, rejecting values the player cannot run with.
func FromViper() (Config, error) {
	cfg := Config{
		LogLevel: viper.GetString("loglevel"),
		LogFile:  viper.GetString("logfile"),
		Output: audiodevice.DeviceProperties{
			SampleRate:  viper.GetInt("samplerate"),
			NumChannels: viper.GetInt("channels"),
		},
		Buffer:          time.Duration(viper.GetInt("buffer_ms")) * time.Millisecond,
		BlockFrames:     viper.GetInt("block_frames"),
		ResampleQuality: viper.GetInt("resample_quality"),
		Sink:            viper.GetString("output"),
		OutputFile:      viper.GetString("output_file"),
		DevicePeriod:    time.Duration(viper.GetInt("device_period_ms")) * time.Millisecond,
		FFTSize:         viper.GetInt("fft_size"),
		Bars:            viper.GetInt("bars"),
		Refresh:         time.Duration(viper.GetInt("refresh_ms")) * time.Millisecond,
		Volume:          float32(viper.GetFloat64("volume")),
		SeekStep:        time.Duration(viper.GetFloat64("seek_step_s") * float64(time.Second)),
		Theme:           viper.GetInt("theme"),
	}

	var errs []error
	if cfg.Output.SampleRate < 8000 || cfg.Output.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("samplerate %d outside [8000, 192000]", cfg.Output.SampleRate))
	}
	if cfg.Output.NumChannels != 1 && cfg.Output.NumChannels != 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Output.NumChannels))
	}
	if cfg.Buffer < 20*time.Millisecond {
		errs = append(errs, fmt.Errorf("buffer_ms must be at least 20, got %v", cfg.Buffer))
	}
	if cfg.BlockFrames <= 0 {
		errs = append(errs, fmt.Errorf("block_frames must be positive, got %d", cfg.BlockFrames))
	}
	if cfg.ResampleQuality < 0 || cfg.ResampleQuality > 10 {
		errs = append(errs, fmt.Errorf("resample_quality must be in [0, 10], got %d", cfg.ResampleQuality))
	}
	switch cfg.Sink {
	case player.SinkOto, player.SinkWav, player.SinkNull:
	default:
		errs = append(errs, fmt.Errorf("output must be one of %s, %s, %s, got %q", player.SinkOto, player.SinkWav, player.SinkNull, cfg.Sink))
	}
	if cfg.DevicePeriod <= 0 {
		errs = append(errs, fmt.Errorf("device_period_ms must be positive, got %v", cfg.DevicePeriod))
	}
	if cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		errs = append(errs, fmt.Errorf("fft_size must be a power of two, got %d", cfg.FFTSize))
	}
	if cfg.Bars <= 0 || cfg.Bars > cfg.FFTSize/2 {
		errs = append(errs, fmt.Errorf("bars must be in [1, fft_size/2], got %d", cfg.Bars))
	}
	if cfg.Refresh <= 0 {
		errs = append(errs, fmt.Errorf("refresh_ms must be positive, got %v", cfg.Refresh))
	}
	if cfg.Volume < 0 {
		errs = append(errs, fmt.Errorf("volume must not be negative, got %v", cfg.Volume))
	}
	if cfg.SeekStep <= 0 {
		errs = append(errs, fmt.Errorf("seek_step_s must be positive, got %v", cfg.SeekStep))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) PlayerOptions() player.Options {
	return player.Options{
		BufferDuration:  c.Buffer,
		BlockFrames:     c.BlockFrames,
		ResampleQuality: c.ResampleQuality,
		Volume:          c.Volume,
		FFTSize:         c.FFTSize,
		Bars:            c.Bars,
		RefreshInterval: c.Refresh,
	}
}

func (c Config) SinkOptions() player.SinkOptions {
	return player.SinkOptions{
		Kind:       c.Sink,
		Properties: c.Output,
		Period:     c.DevicePeriod,
		OutputFile: c.OutputFile,
	}
}
