package backends

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/pkg/backends/graphite"
	"github.com/statsagg/statsagg/pkg/backends/null"
	"github.com/statsagg/statsagg/pkg/backends/stdout"
)

// All known backends.
var backends = map[string]statsagg.BackendFactory{
	graphite.BackendName: graphite.NewClientFromViper,
	null.BackendName:     null.NewClientFromViper,
	stdout.BackendName:   stdout.NewClientFromViper,
}

// GetBackend creates an instance of the named backend, or nil if the name is
// not known. The error return is only used if the named backend was known but
// failed to initialize.
func GetBackend(name string, v *viper.Viper) (statsagg.Backend, error) {
	f, found := backends[name]
	if !found {
		return nil, nil
	}
	return f(v)
}

// InitBackend creates an instance of the named backend.
func InitBackend(name string, v *viper.Viper) (statsagg.Backend, error) {
	if name == "" {
		logrus.Info("No backend specified")
		return nil, nil
	}

	backend, err := GetBackend(name, v)
	if err != nil {
		return nil, fmt.Errorf("could not init backend %q: %v", name, err)
	}
	if backend == nil {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	logrus.Infof("Initialised backend %q", name)

	return backend, nil
}
