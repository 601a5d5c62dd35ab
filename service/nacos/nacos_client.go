package nacos

import (
	"PPRealtime/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

type Options struct {
	Host      string
	Port      uint64
	Namespace string
	Username  string
	Password  string
	LogLevel  string // default warn
}

func (o Options) param() vo.NacosClientParam {
	if o.LogLevel == "" {
		o.LogLevel = "warn"
	}
	opts := []constant.ClientOption{
		constant.WithNamespaceId(o.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(o.LogLevel),
		constant.WithCacheDir("nacos/cache"),
		constant.WithLogDir("nacos/log"),
	}
	if o.Username != "" {
		opts = append(opts, constant.WithUsername(o.Username), constant.WithPassword(o.Password))
	}
	return vo.NacosClientParam{
		ClientConfig:  constant.NewClientConfig(opts...),
		ServerConfigs: []constant.ServerConfig{*constant.NewServerConfig(o.Host, o.Port)},
	}
}

func NewConfigClient(o Options) (config_client.IConfigClient, error) {
	c, err := clients.NewConfigClient(o.param())
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "host", o.Host)
	}
	return c, nil
}

func NewNamingClient(o Options) (naming_client.INamingClient, error) {
	c, err := clients.NewNamingClient(o.param())
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos naming client", "host", o.Host)
	}
	return c, nil
}
