package alerts

// ConfigurationElement matches resource configuration updates. Its producer
// only reports confirmed changes, so every call is a match; the element keeps
// the latest configuration it was handed.
type ConfigurationElement struct {
	core[any]
}

// NewConfigurationElement supports CHANGES only. current may be nil.
func NewConfigurationElement(op Operator, current any, conditionID int) (*ConfigurationElement, error) {
	e := &ConfigurationElement{}
	var value *any
	if current != nil {
		value = &current
	}
	if err := e.init(KindConfiguration, op, nil, value, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ConfigurationElement) Matches(provided any, _ ...any) (bool, error) {
	if e.operator != Changes {
		return false, e.unsupported()
	}
	if provided != nil {
		e.exchange(provided)
	}
	return true, nil
}

func (e *ConfigurationElement) Process(provided any, extras ...any) (bool, error) {
	return e.process(func() (bool, error) { return e.Matches(provided, extras...) })
}

// DriftElement matches drift detection reports. Like ConfigurationElement it
// is a pass-through: the drift detector only reports confirmed drift. It
// carries no value.
type DriftElement struct {
	core[struct{}]
}

// NewDriftElement supports CHANGES only.
func NewDriftElement(op Operator, conditionID int) (*DriftElement, error) {
	e := &DriftElement{}
	if err := e.init(KindDrift, op, nil, nil, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *DriftElement) Matches(_ any, _ ...any) (bool, error) {
	if e.operator != Changes {
		return false, e.unsupported()
	}
	return true, nil
}

func (e *DriftElement) Process(provided any, extras ...any) (bool, error) {
	return e.process(func() (bool, error) { return e.Matches(provided, extras...) })
}
