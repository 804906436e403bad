package config

const (
	defaultAddr       = ":8080"
	defaultDataDir    = "data"
	defaultDriver     = "sqlite"
	defaultBitrate    = "64k"
	defaultChannels   = 1
	defaultSampleRate = 16000
	defaultHistory    = 100
)

// Default returns a config usable for local runs.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:                defaultAddr,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 60,
			IdleTimeoutSeconds:  120,
			MaxUploadMB:         512,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Store: Store{
			Driver: defaultDriver,
		},
		Media: Media{
			FFmpeg:     "ffmpeg",
			FFprobe:    "ffprobe",
			Bitrate:    defaultBitrate,
			Channels:   defaultChannels,
			SampleRate: defaultSampleRate,
		},
		Pipeline: Pipeline{
			StepRetryDelaySeconds:     2,
			PipelineRetryDelaySeconds: 3,
			HistoryLimit:              defaultHistory,
		},
		STT: STT{
			Task: "transcribe",
		},
	}
}
