package matchdto

// Client to server message types.
const (
	TypeCreateMatch    = "create_match"
	TypeJoinMatch      = "join_match"
	TypePlayerReady    = "player_ready"
	TypePlayerSetReady = "player_set_ready"
	TypeMakeMove       = "make_move"
	TypeResign         = "resign"
)

// Server to client message types.
const (
	TypeMatchCreated         = "match_created"
	TypeGameState            = "game_state"
	TypeCountdownStart       = "countdown_start"
	TypeTimerStart           = "timer_start"
	TypeTurnSwitchTimer      = "turn_switch_timer"
	TypeBoardUpdate          = "board_update"
	TypeGameOver             = "game_over"
	TypeOpponentDisconnected = "opponent_disconnected"
	TypeOpponentReconnected  = "opponent_reconnected"
	TypeError                = "error"
)

// Inbound is the union of every client message. Column is a pointer so a
// missing column can be told apart from column 0.
type Inbound struct {
	Type     string `json:"type"`
	MatchID  string `json:"matchId,omitempty"`
	Username string `json:"username,omitempty"`
	Column   *int   `json:"column,omitempty"`
}

type MatchCreated struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
}

type GameState struct {
	Type  string `json:"type"`
	Match Match  `json:"match"`
}

// CountdownStart and TimerStart carry whole seconds.
type CountdownStart struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
}

type TimerStart struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
}

type TurnSwitchTimer struct {
	Type     string `json:"type"`
	Board    Board  `json:"board"`
	NextTurn string `json:"nextTurn"`
}

type BoardUpdate struct {
	Type     string `json:"type"`
	Board    Board  `json:"board"`
	NextTurn string `json:"nextTurn"`
}

// GameOver.Winner is a session id or "draw".
type GameOver struct {
	Type           string `json:"type"`
	Board          Board  `json:"board"`
	Winner         string `json:"winner"`
	WinnerUsername string `json:"winnerUsername"`
	Reason         string `json:"reason,omitempty"`
}

type OpponentDisconnected struct {
	Type string `json:"type"`
}

type OpponentReconnected struct {
	Type string `json:"type"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func NewMatchCreated(matchID string) MatchCreated {
	return MatchCreated{Type: TypeMatchCreated, MatchID: matchID}
}

func NewGameState(m Match) GameState { return GameState{Type: TypeGameState, Match: m} }

func NewCountdownStart(seconds int) CountdownStart {
	return CountdownStart{Type: TypeCountdownStart, Duration: seconds}
}

func NewTimerStart(seconds int) TimerStart { return TimerStart{Type: TypeTimerStart, Duration: seconds} }

func NewTurnSwitchTimer(b Board, nextTurn string) TurnSwitchTimer {
	return TurnSwitchTimer{Type: TypeTurnSwitchTimer, Board: b, NextTurn: nextTurn}
}

func NewBoardUpdate(b Board, nextTurn string) BoardUpdate {
	return BoardUpdate{Type: TypeBoardUpdate, Board: b, NextTurn: nextTurn}
}

func NewGameOver(b Board, winner, winnerUsername, reason string) GameOver {
	return GameOver{Type: TypeGameOver, Board: b, Winner: winner, WinnerUsername: winnerUsername, Reason: reason}
}

func NewOpponentDisconnected() OpponentDisconnected {
	return OpponentDisconnected{Type: TypeOpponentDisconnected}
}

func NewOpponentReconnected() OpponentReconnected {
	return OpponentReconnected{Type: TypeOpponentReconnected}
}

func NewError(code, text string) Error { return Error{Type: TypeError, Error: text, Code: code} }
