package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如资源缺失但流程可继续、套餐限额）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                    = 0
	InvalidRequest        = 4000
	AssetDegraded         = 4004
	QuotaExceeded         = 4010
	TemplateNotAllowed    = 4030
	ExportDisabled        = 4031
	NotFound              = 4040
	UnsafeTemplateContent = 4220
	Canceled              = 4990
	SystemError           = 5000
	GenerationTimeout     = 5040
)
