package domain

// Operation is the closed set of actions a client can request. The envelope's
// method/event pair is decoded into exactly one of these at the boundary;
// values the decoder does not recognize map to OpUnrecognized.
type Operation int

const (
	OpUnrecognized Operation = iota

	// update
	OpEnroll
	OpUpdateUser
	OpDisableUser
	OpUpdateMapItems
	OpUpdateLocation

	// request
	OpRequestUserData
	OpRequestAllUsers
	OpRequestOnlineUsers
	OpRequestRecordedVideos
	OpRequestTimeline
	OpRequestServerLog
	OpRequestLiveStreamers
	OpRequestUserLocations
	OpRequestUserLocation
	OpRequestMapItems
	OpRequestStartStreaming

	// media
	OpStartStream
	OpStopStream
	OpStartWatch
	OpStopWatch
	OpPlayVideo
	OpPauseVideo
	OpResumeVideo
	OpSeekVideo
	OpGetVideoPosition
	OpStopVideo
	OpIceCandidate

	// subscriptions
	OpSubscribe
	OpUnsubscribe
)

var opNames = map[Operation]string{
	OpUnrecognized:          "unrecognized",
	OpEnroll:                "enroll",
	OpUpdateUser:            "updateUser",
	OpDisableUser:           "disableUser",
	OpUpdateMapItems:        "mapItems",
	OpUpdateLocation:        "location",
	OpRequestUserData:       "requestUserData",
	OpRequestAllUsers:       "requestAllUsers",
	OpRequestOnlineUsers:    "requestOnlineUsers",
	OpRequestRecordedVideos: "requestRecordedVideos",
	OpRequestTimeline:       "requestTimeline",
	OpRequestServerLog:      "requestServerLog",
	OpRequestLiveStreamers:  "requestLiveStreamers",
	OpRequestUserLocations:  "requestUserLocations",
	OpRequestUserLocation:   "requestUserLocation",
	OpRequestMapItems:       "requestMapItems",
	OpRequestStartStreaming: "requestStartStreaming",
	OpStartStream:           "startVideoStreamRequest",
	OpStopStream:            "stopVideoStreamRequest",
	OpStartWatch:            "startLiveVideoWatch",
	OpStopWatch:             "stopLiveVideoWatch",
	OpPlayVideo:             "playVideoRequest",
	OpPauseVideo:            "pauseVideoRequest",
	OpResumeVideo:           "resumeVideoRequest",
	OpSeekVideo:             "seekVideoRequest",
	OpGetVideoPosition:      "getVideoPositionRequest",
	OpStopVideo:             "stopVideoRequest",
	OpIceCandidate:          "iceCandidate",
	OpSubscribe:             "subscribe",
	OpUnsubscribe:           "unsubscribe",
}

func (op Operation) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unrecognized"
}
