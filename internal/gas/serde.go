package gas

import (
	"encoding/json"

	"github.com/dexmeta/aggregator/internal/models"
)

func encodeGasReport(r *models.GasReport) ([]byte, error) {
	return json.Marshal(r)
}

func decodeGasReport(raw []byte) (*models.GasReport, error) {
	var r models.GasReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
