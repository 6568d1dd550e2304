package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameUser      = "user"
	FieldNameSession   = "session"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldUser 返回一个包含用户名的 zap 字段。
func FieldUser(username string) zap.Field {
	return zap.String(FieldNameUser, username)
}

// FieldSession 返回一个包含会话 ID 的 zap 字段。
func FieldSession(id uint64) zap.Field {
	return zap.Uint64(FieldNameSession, id)
}
