package global

import (
	"PPRealtime/global/config"
	"PPRealtime/logger"
	"PPRealtime/service/nacos"

	"go.uber.org/zap"
)

func NacosOptions(cfg *config.Config) nacos.Options {
	return nacos.Options{
		Host:      cfg.Nacos.Host,
		Port:      cfg.Nacos.Port,
		Namespace: cfg.Nacos.Namespace,
		Username:  cfg.Nacos.Username,
		Password:  cfg.Nacos.Password,
	}
}

// LoadConfig reads the local file and, when nacos is enabled there, replaces
// it with the remote content. The nacos section itself always comes from the
// local file. A watcher is returned when nacos is in use.
func LoadConfig(path string) (*config.Config, *nacos.Watcher, error) {
	local, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if !local.Nacos.Enabled {
		return local, nil, nil
	}

	cc, err := nacos.NewConfigClient(NacosOptions(local))
	if err != nil {
		return nil, nil, err
	}
	w := nacos.NewWatcher(cc, local.Nacos.DataID, local.Nacos.Group)
	content, err := w.Fetch()
	if err != nil {
		return nil, nil, err
	}
	if content == "" {
		logger.Warn("[nacos] empty remote config, using local", zap.String("dataId", local.Nacos.DataID))
		return local, w, nil
	}
	remote, err := remoteConfig(content, local.Nacos)
	if err != nil {
		return nil, nil, err
	}
	return remote, w, nil
}

func remoteConfig(content string, nc config.NacosConfig) (*config.Config, error) {
	c, err := config.Parse([]byte(content))
	if err != nil {
		return nil, err
	}
	c.Nacos = nc
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WatchConfig applies runtime-safe changes (the log level) pushed by nacos.
// Everything else needs a restart.
func WatchConfig(w *nacos.Watcher, current *config.Config) error {
	return w.Watch(func(content string) {
		c, err := remoteConfig(content, current.Nacos)
		if err != nil {
			logger.Warn("[nacos] ignoring invalid config", zap.Error(err))
			return
		}
		if c.Log.Level != logger.Level() {
			if err := logger.SetLevel(c.Log.Level); err != nil {
				logger.Warn("[nacos] bad log level", zap.String("level", c.Log.Level))
				return
			}
			logger.Info("[nacos] log level changed", zap.String("level", c.Log.Level))
		}
	})
}
