package nacos

import (
	"sync"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// ConfigSource is the subset of the nacos config client the watcher needs.
type ConfigSource interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
	CancelListenConfig(param vo.ConfigParam) error
}

var _ ConfigSource = (config_client.IConfigClient)(nil)

// Watcher keeps the latest content of one data id and calls OnChange for
// every update pushed by the server.
type Watcher struct {
	src    ConfigSource
	dataID string
	group  string

	mu      sync.RWMutex
	current string
}

func NewWatcher(src ConfigSource, dataID, group string) *Watcher {
	return &Watcher{src: src, dataID: dataID, group: group}
}

// Fetch reads the current content once.
func (w *Watcher) Fetch() (string, error) {
	content, err := w.src.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", errs.WrapMsg(err, "get nacos config", "dataId", w.dataID, "group", w.group)
	}
	w.update(content)
	return content, nil
}

// Watch registers onChange; the nacos client calls it from its own goroutine.
func (w *Watcher) Watch(onChange func(content string)) error {
	err := w.src.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("[nacos] config changed", zap.String("dataId", dataId), zap.String("group", group))
			w.update(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "listen nacos config", "dataId", w.dataID)
	}
	return nil
}

func (w *Watcher) Stop() error {
	return w.src.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
}

func (w *Watcher) update(data string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = data
}

func (w *Watcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
