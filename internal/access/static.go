package access

import (
	"strings"
)

// AdminToken 授予管理员能力，持有者跳过所有 manifest 检查。
const AdminToken = "role:admin"

// Grant 描述一个静态调用方：凭证 Token 与其被授予的访问令牌。
type Grant struct {
	Name   string
	Token  string
	Grants []string
}

// StaticOracle 是基于配置的 Oracle 实现，供单机部署使用。
type StaticOracle struct {
	byToken map[string]Caller
	grants  map[string]map[string]struct{}
}

// NewStaticOracle 根据配置中的 [[Caller]] 列表构建 Oracle。
func NewStaticOracle(callers []Grant) *StaticOracle {
	o := &StaticOracle{
		byToken: make(map[string]Caller, len(callers)),
		grants:  make(map[string]map[string]struct{}, len(callers)),
	}
	for _, c := range callers {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		set := make(map[string]struct{}, len(c.Grants))
		for _, g := range c.Grants {
			if g = strings.TrimSpace(g); g != "" {
				set[g] = struct{}{}
			}
		}
		o.grants[name] = set
		if c.Token != "" {
			o.byToken[c.Token] = Caller{ID: name}
		}
	}
	return o
}

// Identify maps a bearer credential to a caller; unknown credentials are anonymous.
func (o *StaticOracle) Identify(credential string) Caller {
	if o == nil || credential == "" {
		return Anonymous
	}
	if caller, ok := o.byToken[credential]; ok {
		return caller
	}
	return Anonymous
}

func (o *StaticOracle) Authorized(token string, caller Caller) bool {
	if o == nil {
		return false
	}
	set, ok := o.grants[caller.ID]
	if !ok {
		return false
	}
	_, ok = set[strings.TrimSpace(token)]
	return ok
}

func (o *StaticOracle) IsAdmin(caller Caller) bool {
	return o.Authorized(AdminToken, caller)
}

// Callers returns the number of configured callers.
func (o *StaticOracle) Callers() int {
	if o == nil {
		return 0
	}
	return len(o.grants)
}
