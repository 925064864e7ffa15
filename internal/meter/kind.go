package meter

import "fmt"

type Kind int

const (
	CPU Kind = iota
	Memory
	Swap
	Storage
	Network
	SystemLoad
	GPU
)

var kindNames = [...]string{
	CPU:        "cpu",
	Memory:     "memory",
	Swap:       "swap",
	Storage:    "storage",
	Network:    "network",
	SystemLoad: "load",
	GPU:        "gpu",
}

func Kinds() []Kind {
	return []Kind{CPU, Memory, Swap, Storage, Network, SystemLoad, GPU}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("meter: unknown kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
