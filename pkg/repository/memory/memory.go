package memory

import (
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
)

// Memory is an in-memory repository for development and tests
type Memory struct {
	records *recordRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		records: newRecordRepository(),
	}
}

func (m *Memory) Records() interfaces.RecordRepository {
	return m.records
}

func (m *Memory) Close() error {
	return nil
}
