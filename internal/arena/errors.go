package arena

import "errors"

var (
	ErrInvalidMove      = errors.New("invalid_move")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotYourTurn      = errors.New("not_your_turn")
	ErrMatchNotFound    = errors.New("match_not_found")
	ErrMatchNotPlayable = errors.New("match_not_playable")
	ErrUnknownStrategy  = errors.New("unknown_strategy")
)
