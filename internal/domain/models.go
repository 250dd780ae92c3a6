package domain

import "time"

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomCompleted  RoomStatus = "completed"
	RoomCancelled  RoomStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s RoomStatus) Terminal() bool {
	return s == RoomCompleted || s == RoomCancelled
}

// PlayerStatus is the room-scoped state of a participant.
type PlayerStatus string

const (
	PlayerJoined   PlayerStatus = "joined"
	PlayerReady    PlayerStatus = "ready"
	PlayerPlaying  PlayerStatus = "playing"
	PlayerFinished PlayerStatus = "finished"
	PlayerLeft     PlayerStatus = "left"
)

// QuestionType enumerates the supported answer formats.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	Spelling       QuestionType = "spelling"
)

// Room is a bounded multiplayer session identified by ID and a short code.
type Room struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	GameType   string         `json:"gameType"`
	CreatorID  string         `json:"creatorId"`
	Status     RoomStatus     `json:"status"`
	MaxPlayers int            `json:"maxPlayers"`
	GradeLevel int            `json:"gradeLevel"`
	Difficulty string         `json:"difficulty"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	EndedAt    *time.Time     `json:"endedAt,omitempty"`
}

// Player is one participant's membership in a room, distinct from their account.
type Player struct {
	ID             string       `json:"id"`
	RoomID         string       `json:"roomId"`
	Score          int          `json:"score"`
	CorrectAnswers int          `json:"correctAnswers"`
	TotalAnswers   int          `json:"totalAnswers"`
	Status         PlayerStatus `json:"status"`
	Rank           *int         `json:"rank,omitempty"`
	JoinedAt       time.Time    `json:"joinedAt"`
}

// Active reports whether the player still occupies a roster slot.
func (p Player) Active() bool {
	return p.Status != PlayerLeft
}

// QuestionSpec is a question as supplied by the question source, answer key included.
// It never leaves the sequencer once a room has started.
type QuestionSpec struct {
	Prompt           string       `json:"prompt" yaml:"prompt"`
	Type             QuestionType `json:"type" yaml:"type"`
	Options          []string     `json:"options,omitempty" yaml:"options"`
	CorrectAnswer    string       `json:"correctAnswer" yaml:"correctAnswer"`
	Points           int          `json:"points" yaml:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
	Subject          string       `json:"subject,omitempty" yaml:"subject"`
}

// QuestionView is the client-safe form of a question.
type QuestionView struct {
	ID               string       `json:"id"`
	SequenceNumber   int          `json:"sequenceNumber"`
	Prompt           string       `json:"prompt"`
	Type             QuestionType `json:"type"`
	Options          []string     `json:"options,omitempty"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
	Subject          string       `json:"subject"`
}

// QuestionQuery selects questions from a question source.
type QuestionQuery struct {
	GameType   string
	GradeLevel int
	Difficulty string
	Count      int
}

// Submission is an answer attempt from one player for one question.
type Submission struct {
	// PlayerID is optional; when set it must match the authenticated caller.
	PlayerID        string `json:"playerId,omitempty"`
	QuestionID      string `json:"questionId"`
	Answer          string `json:"answer"`
	ClientElapsedMs int64  `json:"clientElapsedMs"`
}

// Verdict is the graded outcome of a submission.
type Verdict struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	Expired      bool   `json:"expired,omitempty"`
	TotalScore   int    `json:"totalScore"`
}

// Standing is a ranked scoreboard row.
type Standing struct {
	PlayerID       string `json:"playerId"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	Rank           int    `json:"rank"`
}

// Snapshot is the reconciled read model of a room for one caller.
type Snapshot struct {
	Room             Room          `json:"room"`
	Players          []Player      `json:"players"`
	Question         *QuestionView `json:"question,omitempty"`
	TotalQuestions   int           `json:"totalQuestions"`
	QuestionStarted  *time.Time    `json:"questionStartedAt,omitempty"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	RemainingSeconds int           `json:"remainingSeconds"`
	MyVerdict        *Verdict      `json:"myVerdict,omitempty"`
	ServerTime       time.Time     `json:"serverTime"`
}
