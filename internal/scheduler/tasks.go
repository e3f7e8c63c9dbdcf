package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSalesImport = "tracking.sales.import"

// Import targets.
const (
	TargetExpress     = "express"
	TargetChallenge3D = "challenge3d"
	TargetAll         = "all"
)

// SalesImportPayload bounds one scheduled backfill run.
type SalesImportPayload struct {
	Target string `json:"target"`
	// Days limits the window to the last N days; 0 means all time.
	Days int `json:"days"`
}

func NewSalesImportTask(payload SalesImportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSalesImport, data), nil
}

func ParseSalesImportPayload(task *asynq.Task) (SalesImportPayload, error) {
	var payload SalesImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SalesImportPayload{}, err
	}
	return payload, nil
}
