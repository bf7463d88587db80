package storage

import (
	"encoding/json"
	"errors"

	"gridsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps a record with the versions this build writes.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeTickHistory(history []model.TickSummary) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeTickHistory(data []byte) ([]model.TickSummary, error) {
	var history []model.TickSummary
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeQTable(table []model.QValue) ([]byte, error) {
	return json.Marshal(table)
}

func DecodeQTable(data []byte) ([]model.QValue, error) {
	var table []model.QValue
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}

func EncodeDiscoveries(cells []model.Cell) ([]byte, error) {
	return json.Marshal(cells)
}

func DecodeDiscoveries(data []byte) ([]model.Cell, error) {
	var cells []model.Cell
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, err
	}
	return cells, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
