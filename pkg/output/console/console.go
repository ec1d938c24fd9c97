package console

import (
	"fmt"
	"strings"

	"github.com/ericogr/fsr-logger/pkg/output"
	"github.com/ericogr/fsr-logger/pkg/record"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Status(lines ...string) error {
	fmt.Printf("status: %s\n", strings.Join(lines, " | "))
	return nil
}

func (c *ConsoleOutput) Publish(r record.Reading, max float64) error {
	fmt.Printf("%s id=%d raw=%d force=%s max=%s\n",
		r.Timestamp.Format(record.TimeLayout), r.ID, r.Raw, record.FormatForce(r.Force), record.FormatForce(max))
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
