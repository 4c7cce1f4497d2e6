package sid

import (
	"fmt"
	"strconv"

	"github.com/sony/sonyflake"
)

type Sid struct {
	sf *sonyflake.Sonyflake
}

func NewSid() *Sid {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		// 容器内没有私有 IPv4 时默认 MachineID 会失败
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			MachineID: func() (uint16, error) { return 1, nil },
		})
	}
	if sf == nil {
		panic("sonyflake not created")
	}
	return &Sid{sf}
}

func (s Sid) GenString() (string, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 36), nil
}

func (s Sid) GenUint64() (uint64, error) {
	return s.sf.NextID()
}

// GenPrefixed 生成带业务前缀的 ID，例如 sess-3kd9x0a1
func (s Sid) GenPrefixed(prefix string) (string, error) {
	id, err := s.GenString()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", prefix, id), nil
}
