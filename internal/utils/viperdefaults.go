package utils

import "github.com/spf13/viper"

// Set the viper defaults for the player.
// For use in cmd/config, and in tests that build a config without a file.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	viper.SetDefault("samplerate", 48000)
	viper.SetDefault("channels", 2)
	viper.SetDefault("buffer_ms", 300)
	viper.SetDefault("block_frames", 1024)
	viper.SetDefault("resample_quality", 10)

	viper.SetDefault("output", "oto")
	viper.SetDefault("output_file", "cassette.wav")
	viper.SetDefault("device_period_ms", 10)

	viper.SetDefault("fft_size", 2048)
	viper.SetDefault("bars", 32)
	viper.SetDefault("refresh_ms", 50)

	viper.SetDefault("volume", 0.7)
	viper.SetDefault("seek_step_s", 5)
	viper.SetDefault("theme", 0)
}
