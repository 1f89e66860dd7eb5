package orchestrator

// Notice levels
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

const (
	fullPurgeSentMessage   = "Cloudflare cache purge request sent - may take a minute."
	fullPurgeFailedMessage = "Cloudflare cache purge request FAILED. Try again in a couple minutes. Message: "
)

// Notice is the admin-facing result of a manual full-zone purge
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func successNotice() *Notice {
	return &Notice{Level: NoticeSuccess, Message: fullPurgeSentMessage}
}

func failureNotice(providerMessage string) *Notice {
	return &Notice{Level: NoticeError, Message: fullPurgeFailedMessage + providerMessage}
}
