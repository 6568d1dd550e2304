package event

// Kind 是事件种类的显式标签。
//
// 监听器在注册时声明自己关心的 Kind，事件实例携带自身的 Kind，
// 分发时只做标签比较，不做任何运行期结构探查。
//
// 多态匹配通过显式的父子表实现：声明为父 Kind 的监听器同样会收到
// 子 Kind 的事件（例如声明 KindChat 的监听器会收到 KindConsoleChat）。
type Kind string

const (
	// KindAny 是所有事件种类的根，声明为 KindAny 的监听器接收一切事件。
	KindAny Kind = "any"

	KindChat        Kind = "chat"
	KindConsoleChat Kind = "console_chat"
	KindUserJoin    Kind = "user_join"
	KindUserLeave   Kind = "user_leave"
	KindCommand     Kind = "command"
	KindAuth        Kind = "auth"
)

// kindParents 为事件种类的父子表。
// 未出现在表中的 Kind 视为直接挂在 KindAny 之下。
var kindParents = map[Kind]Kind{
	KindChat:        KindAny,
	KindConsoleChat: KindChat,
	KindUserJoin:    KindAny,
	KindUserLeave:   KindAny,
	KindCommand:     KindAny,
	KindAuth:        KindAny,
}

// knownKinds 为全部已注册的事件种类，用于在监听器注册时校验元数据。
var knownKinds = func() map[Kind]struct{} {
	m := map[Kind]struct{}{KindAny: {}}
	for k := range kindParents {
		m[k] = struct{}{}
	}
	return m
}()

// Known 判断给定 Kind 是否为已注册的事件种类。
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// Matches 判断携带当前 Kind 的事件是否应分发给声明了 declared 的监听器。
//
// 匹配规则：declared 等于当前 Kind，或是其沿父子表向上的任一祖先。
func (k Kind) Matches(declared Kind) bool {
	if declared == KindAny {
		return true
	}
	for cur := k; ; {
		if cur == declared {
			return true
		}
		parent, ok := kindParents[cur]
		if !ok {
			return false
		}
		cur = parent
	}
}
