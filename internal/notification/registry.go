package notification

import "maps"

// Registry は通知の種類からテンプレートを引く。
type Registry interface {
	Lookup(kind Kind) (Template, bool)
}

type defaultRegistry struct{}

func (defaultRegistry) Lookup(kind Kind) (Template, bool) {
	return templateFor(kind)
}

// DefaultRegistry は定義済みのテンプレートだけを持つ不変のレジストリを返す。
func DefaultRegistry() Registry {
	return defaultRegistry{}
}

type overlayRegistry struct {
	base      Registry
	overrides map[Kind]Template
}

func (r overlayRegistry) Lookup(kind Kind) (Template, bool) {
	if t, ok := r.overrides[kind]; ok {
		return t, true
	}
	return r.base.Lookup(kind)
}

// WithOverrides は base の上に overrides を重ねたレジストリを返す。
// base と overrides は変更しない。
func WithOverrides(base Registry, overrides map[Kind]Template) Registry {
	return overlayRegistry{base: base, overrides: maps.Clone(overrides)}
}
