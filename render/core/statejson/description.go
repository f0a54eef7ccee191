// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package statejson

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// StateDescription ...
type StateDescription struct {
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"`
}

// FormDescription describes the status machine of one form
type FormDescription struct {
	FormID  int64            `json:"formId"`
	EventID string           `json:"eventId"`
	State   StateDescription `json:"state"`
}

// SurfaceDescription describes one live form of a record
type SurfaceDescription struct {
	FormID     int64    `json:"formId"`
	Components []string `json:"components"`
	Hosts      int      `json:"hosts"`
	Visible    bool     `json:"visible"`
}

// RecordDescription describes the forms held for one client
type RecordDescription struct {
	ClientID        string               `json:"clientId"`
	BundleName      string               `json:"bundleName"`
	SupportsDynamic bool                 `json:"supportsDynamic"`
	Forms           []SurfaceDescription `json:"forms"`
	DeferredForms   []int64              `json:"deferredForms"`
	PendingTasks    int                  `json:"pendingTasks"`
}

// InternalStateDescription describes internal state of the render service for debugging purposes
type InternalStateDescription struct {
	Records       []RecordDescription `json:"records"`
	Forms         []FormDescription   `json:"forms"`
	Critical      bool                `json:"critical"`
	Unlocked      bool                `json:"unlocked"`
	ScreenOn      bool                `json:"screenOn"`
	Configuration map[string]string   `json:"configuration"`
}

func (s *InternalStateDescription) AsJSON() []byte {
	bytes, err := json.Marshal(s)
	if err != nil {
		log.Panicf("Failed to marshall internal states: %s", err)
	}
	return bytes
}
