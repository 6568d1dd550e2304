package chat

// UserProfile 描述一个已注册用户的资料。
//
// 约定：
//   - ID/IP/Username/Email/Phone 为身份字段，在注册或登录时填充后不再变化；
//   - Role 与 Active 可被管理命令修改；
//   - 相等性按全部字段的结构相等定义（Go 结构体比较语义）。
type UserProfile struct {
	ID       uint64
	IP       string
	Username string
	Role     Role
	Email    string
	Phone    string
	Active   bool
}

// Equal 判断两个资料是否结构相等。
func (p UserProfile) Equal(other UserProfile) bool {
	return p == other
}
