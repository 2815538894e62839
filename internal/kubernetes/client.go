package k8s

import (
	"fmt"
	"path/filepath"

	"github.com/u2takey/go-utils/filesystem/homedir"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset builds a clientset from kubeconfig when set, else from the
// in-cluster service account, else from ~/.kube/config.
func NewClientset(kubeconfig string, log *zap.Logger) (kubernetes.Interface, error) {
	config, err := loadConfig(kubeconfig, log)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

func loadConfig(kubeconfig string, log *zap.Logger) (*rest.Config, error) {
	if kubeconfig != "" {
		config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build config from %s: %w", kubeconfig, err)
		}
		return config, nil
	}

	config, err := rest.InClusterConfig()
	if err == nil {
		log.Info("using in-cluster kubernetes config")
		return config, nil
	}

	home := homedir.HomeDir()
	if home == "" {
		return nil, fmt.Errorf("no kubeconfig given, not in cluster and no home directory: %w", err)
	}

	path := filepath.Join(home, ".kube", "config")
	config, err = clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from %s: %w", path, err)
	}
	log.Info("using kubeconfig", zap.String("path", path))
	return config, nil
}
