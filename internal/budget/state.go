package budget

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"TradeSentinel/internal/model"
)

// LoadState reads the risk budget from a JSON file. Returns a zero state if the file doesn't exist.
func LoadState(filePath string) (*model.RiskBudget, error) {
	if filePath == "" {
		return &model.RiskBudget{}, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.RiskBudget{}, nil
		}
		return nil, err
	}
	var state model.RiskBudget
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the risk budget to a JSON file. An empty path disables persistence.
func SaveState(filePath string, state *model.RiskBudget) error {
	state.UpdatedAt = time.Now()
	if filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
