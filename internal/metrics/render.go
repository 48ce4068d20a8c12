package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvforge",
			Subsystem: "render",
			Name:      "outcomes_total",
			Help:      "渲染请求结果（delivered/degraded/failed）。",
		},
		[]string{"template_kind", "mode", "outcome"},
	)

	templateMutationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvforge",
			Subsystem: "templates",
			Name:      "mutations_total",
			Help:      "自定义模板变更次数。",
		},
		[]string{"operation", "result"},
	)
)

// ObserveRender 记录一次渲染的最终结果。
func ObserveRender(templateKind, mode, outcome string) {
	renderOutcomeTotal.WithLabelValues(templateKind, mode, outcome).Inc()
}

// ObserveTemplateMutation 记录一次模板变更；result 为 ok 或错误类别。
func ObserveTemplateMutation(operation, result string) {
	templateMutationTotal.WithLabelValues(operation, result).Inc()
}
