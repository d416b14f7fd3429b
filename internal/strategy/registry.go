package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Options 为策略构造参数。
type Options struct {
	// PAMRCap 限制自适应策略的单步更新幅度，非正值使用默认值。
	PAMRCap float64
}

// 静态注册表：策略名到构造函数。启动即确定，不做运行时插件发现。
var registry = map[string]func(opts Options) Policy{
	"bcr":  func(Options) Policy { return &BCR{} },
	"noop": func(Options) Policy { return &Noop{} },
	"pamr": func(opts Options) Policy { return NewPAMR(opts.PAMRCap) },
}

// New 按名称构造策略，未知名称返回配置错误并列出可用策略。
func New(name string, opts Options) (Policy, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("strategy: 未知策略 %q，可用策略: %s", name, strings.Join(Names(), ", "))
	}
	return build(opts), nil
}

// Names 返回全部已注册策略名，按字典序排序。
func Names() []string {
	res := make([]string, 0, len(registry))
	for name := range registry {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
