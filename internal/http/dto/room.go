package dto

type UpsertAgentRequest struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name" binding:"required,min=1,max=255"`
	Persona      string `json:"persona" binding:"omitempty,max=64"`
	Instructions string `json:"instructions" binding:"omitempty,max=4000"`
}

type PostMessageRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content" binding:"required,min=1,max=8000"`
}

type SetUserPatternRequest struct {
	Summary string   `json:"summary" binding:"required,max=2000"`
	Traits  []string `json:"traits" binding:"omitempty,max=20,dive,max=100"`
}
