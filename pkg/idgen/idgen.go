package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// epoch is the sonyflake start time; ids stay sortable by creation
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator produces durable entity ids
type Generator interface {
	NextID() (string, error)
}

type sonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newSonyflakeGenerator(machineId uint16) (*sonyflakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) { return machineId, nil },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}
	return &sonyflakeGenerator{sf: sf}, nil
}

func (g *sonyflakeGenerator) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return strconv.FormatUint(id, 10), nil
}

var (
	mu        sync.Mutex
	generator Generator
)

// Init installs the process generator for machineId. Instances sharing a database need distinct machine ids.
func Init(machineId uint16) error {
	gen, err := newSonyflakeGenerator(machineId)
	if err != nil {
		return err
	}
	mu.Lock()
	generator = gen
	mu.Unlock()
	return nil
}

func current() (Generator, error) {
	mu.Lock()
	defer mu.Unlock()
	if generator == nil {
		gen, err := newSonyflakeGenerator(1)
		if err != nil {
			return nil, err
		}
		generator = gen
	}
	return generator, nil
}

// NextID returns a new entity id
func NextID() (string, error) {
	gen, err := current()
	if err != nil {
		return "", err
	}
	return gen.NextID()
}

// NewConnId returns a random id for ephemeral things such as connections and gateway instances
func NewConnId() string {
	return uuid.NewString()
}
