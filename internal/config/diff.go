package config

import (
	"reflect"

	"github.com/MrWong99/livescribe/pkg/vad"
)

// ConfigDiff describes what changed between two configs. Log level and
// segmenter options apply live; every other change is listed in
// RestartRequired by its YAML section.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is set when any segmenter option moved. NewVAD is the
	// complete replacement config.
	VADChanged bool
	NewVAD     vad.Config

	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VADChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if ov, nv := old.VAD(), new.VAD(); ov != nv {
		d.VADChanged = true
		d.NewVAD = nv
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS))
	restart("audio.min_utterance_duration", old.Audio.MinUtteranceDuration != new.Audio.MinUtteranceDuration)
	restart("audio.resample_idle_reset", old.Audio.ResampleIdleReset != new.Audio.ResampleIdleReset)
	restart("writer", old.Writer != new.Writer)
	restart("pipeline", old.Pipeline != new.Pipeline)
	restart("languages", old.Languages != new.Languages)
	restart("providers", !reflect.DeepEqual(old.Providers, new.Providers))
	restart("archive", old.Archive != new.Archive)
	restart("glossary", !reflect.DeepEqual(old.Glossary, new.Glossary))
	return d
}
