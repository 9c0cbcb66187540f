package barrier

import "errors"

var (
	errAddDuringWait    = errors.New("AddParty called while a wait is in progress")
	errRemoveDuringWait = errors.New("RemoveParty called while a wait is in progress")
	errRemoveEmpty      = errors.New("RemoveParty called on a barrier with no parties")
)
