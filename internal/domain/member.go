package domain

// VoiceMember is the roster entry broadcast to a voice room.
type VoiceMember struct {
	ID          UserID `json:"id"`
	Name        string `json:"name"`
	Muted       bool   `json:"isMuted"`
	HasProducer bool   `json:"hasProducer"`
}

// ProducerInfo describes another participant's outbound stream.
type ProducerInfo struct {
	ProducerID string `json:"producerId"`
	UserID     UserID `json:"userId"`
	UserName   string `json:"userName"`
}
