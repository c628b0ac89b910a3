package state

import (
	"errors"

	"github.com/wfunc/mafia/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to models.Phase, condition func() bool)
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() models.Phase
	HandleAction(in models.Intent) error
}

// timedState 有阶段计时器的状态，超时后用已收集的数据结算
type timedState interface {
	OnTimeout() error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现。只允许注册过的转换，condition 为 nil 表示无条件。
// 状态机不加锁，由房间的命令循环保证串行访问。
type BaseStateMachine struct {
	currentState State
	transitions  map[models.Phase]map[models.Phase]func() bool // fromState -> toState -> condition
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Phase]map[models.Phase]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	conditions, exists := sm.transitions[sm.currentState.GetID()]
	if !exists {
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newState.GetID()]
	if !exists {
		return ErrTransitionNotAllowed
	}
	if condition != nil && !condition() {
		return ErrTransitionNotAllowed
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to models.Phase, condition func() bool) {
	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Phase]func() bool)
	}
	sm.transitions[from][to] = condition
}

// CanTransition 判断转换是否已注册且条件满足
func (sm *BaseStateMachine) CanTransition(to models.Phase) bool {
	condition, exists := sm.transitions[sm.currentState.GetID()][to]
	return exists && (condition == nil || condition())
}
