package signal

import (
	"strings"

	"github.com/dkeye/huddle/internal/app/voice"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// inbound

type setUserNameRequest struct {
	UserName string `json:"userName" validate:"required"`
}

type createRoomRequest struct {
	RoomName  domain.RoomName `json:"roomName" validate:"required"`
	IsPrivate bool            `json:"isPrivate"`
	Password  string          `json:"password" validate:"max=128"`
}

type joinRoomRequest struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
	Password string          `json:"password" validate:"max=128"`
}

type roomRequest struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
}

type sendMessageRequest struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
	Text     string          `json:"text" validate:"required,max=4000"`
}

type roomUserRequest struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
	UserID   core.SessionID  `json:"userId" validate:"required"`
}

type toggleMuteRequest struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
	IsMuted  bool            `json:"isMuted"`
}

type createTransportRequest struct {
	RoomName  domain.RoomName `json:"roomName" validate:"required"`
	Direction core.Direction  `json:"direction" validate:"required,oneof=send receive"`
}

type connectTransportRequest struct {
	RoomName       domain.RoomName     `json:"roomName" validate:"required"`
	TransportID    string              `json:"transportId" validate:"required"`
	DTLSParameters core.DTLSParameters `json:"dtlsParameters"`
	ICEParameters  *core.ICEParameters `json:"iceParameters,omitempty"`
}

type produceRequest struct {
	RoomName      domain.RoomName    `json:"roomName" validate:"required"`
	TransportID   string             `json:"transportId" validate:"required"`
	Kind          core.MediaKind     `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
}

type consumeRequest struct {
	RoomName        domain.RoomName      `json:"roomName" validate:"required"`
	ProducerID      string               `json:"producerId" validate:"required"`
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerRequest struct {
	RoomName   domain.RoomName `json:"roomName" validate:"required"`
	ConsumerID string          `json:"consumerId" validate:"required"`
}

// outbound

type connectedPayload struct {
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

type roomListPayload struct {
	Rooms []domain.RoomSummary `json:"rooms"`
}

type roomCreatedPayload struct {
	RoomName  domain.RoomName `json:"roomName"`
	IsPrivate bool            `json:"isPrivate"`
	Created   bool            `json:"created"`
}

type roomUsersPayload struct {
	RoomName  domain.RoomName `json:"roomName"`
	Users     []domain.Member `json:"users"`
	CreatorID domain.UserID   `json:"creatorId"`
}

type roomMessagesPayload struct {
	RoomName domain.RoomName  `json:"roomName"`
	Messages []domain.Message `json:"messages"`
}

type roomPayload struct {
	RoomName domain.RoomName `json:"roomName"`
}

type errorPayload struct {
	Event   string           `json:"event,omitempty"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type voiceUsersPayload struct {
	RoomName domain.RoomName      `json:"roomName"`
	Users    []domain.VoiceMember `json:"users"`
}

type voiceUserPayload struct {
	RoomName domain.RoomName `json:"roomName"`
	UserID   domain.UserID   `json:"userId"`
}

type mutePayload struct {
	RoomName domain.RoomName `json:"roomName"`
	UserID   domain.UserID   `json:"userId,omitempty"`
	IsMuted  bool            `json:"isMuted"`
}

type capabilitiesPayload struct {
	RoomName        domain.RoomName      `json:"roomName"`
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
}

type transportCreatedPayload struct {
	RoomName  domain.RoomName `json:"roomName"`
	Direction core.Direction  `json:"direction"`
	core.TransportParams
}

type transportConnectedPayload struct {
	RoomName    domain.RoomName `json:"roomName"`
	TransportID string          `json:"transportId"`
}

type producedPayload struct {
	RoomName   domain.RoomName `json:"roomName"`
	ProducerID string          `json:"producerId"`
}

type newProducerPayload struct {
	RoomName domain.RoomName `json:"roomName"`
	domain.ProducerInfo
}

type consumedPayload struct {
	RoomName domain.RoomName `json:"roomName"`
	voice.ConsumerParams
}

type consumerResumedPayload struct {
	RoomName   domain.RoomName `json:"roomName"`
	ConsumerID string          `json:"consumerId"`
}

type producersListPayload struct {
	RoomName  domain.RoomName       `json:"roomName"`
	Producers []domain.ProducerInfo `json:"producers"`
}

func userID(sid core.SessionID) domain.UserID { return domain.UserID(sid) }

type userNamePayload struct {
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

type roomUserPayload struct {
	RoomName domain.RoomName `json:"roomName"`
	UserID   domain.UserID   `json:"userId"`
}

func cleanRoom(name domain.RoomName) domain.RoomName {
	return domain.RoomName(strings.TrimSpace(string(name)))
}
