package utils

import (
	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-cache/types"
)

var jsonAPI = sonic.ConfigStd

func Marshal(data interface{}) ([]byte, error) {
	return jsonAPI.Marshal(data)
}

func Unmarshal[T any](data []byte, target *T) error {
	return jsonAPI.Unmarshal(data, target)
}

// UnmarshalConfig converts the loosely typed "config" block of a component
// section into its concrete struct, keeping the target's defaults for
// fields the block does not mention.
func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	if typed, ok := config.(T); ok {
		*target = typed
		return nil
	}

	configBytes, err := jsonAPI.Marshal(config)
	if err != nil {
		return types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := jsonAPI.Unmarshal(configBytes, target); err != nil {
		return types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	return nil
}
