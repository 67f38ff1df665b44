// Package bench drives gates through scripted wait/cancel/open rounds and
// checks the ordering and resume-once guarantees on every round.
package bench

import (
	"os"
	"time"

	"github.com/bobg/errors"
	"gopkg.in/yaml.v3"
)

// Scenario describes one stress run.
type Scenario struct {
	Name string `yaml:"name"`

	// Waiters is the number of goroutines blocked on the gate per round.
	Waiters int `yaml:"waiters"`

	// Rounds is how many fresh gates are exercised.
	Rounds int `yaml:"rounds"`

	// CancelEvery cancels every n-th waiter before the gate opens.
	// Zero cancels none.
	CancelEvery int `yaml:"cancel_every"`

	// Release tears the gate down instead of signaling it.
	Release bool `yaml:"release_instead_of_signal"`

	// Timeout bounds each wait. A waiter that times out is a lost wakeup
	// and is reported as a violation. Zero means unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

// Default is the scenario used when none is given.
var Default = Scenario{
	Name:        "default",
	Waiters:     64,
	Rounds:      10,
	CancelEvery: 4,
	Timeout:     10 * time.Second,
}

// Validate reports the first invalid field of sc.
func (sc Scenario) Validate() error {
	switch {
	case sc.Waiters < 1:
		return errors.New("waiters must be at least 1")
	case sc.Rounds < 1:
		return errors.New("rounds must be at least 1")
	case sc.CancelEvery < 0:
		return errors.New("cancel_every must not be negative")
	case sc.Timeout < 0:
		return errors.New("timeout must not be negative")
	}
	return nil
}

// LoadScenario reads a YAML scenario file.
// Fields missing from the file take their values from Default.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "opening scenario %s", path)
	}
	defer f.Close()

	sc := Default
	sc.Name = ""
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, errors.Wrapf(err, "decoding scenario %s", path)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, errors.Wrapf(err, "scenario %s", path)
	}
	return sc, nil
}
