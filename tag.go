// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flowbird

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// CustomerType is the kind of media reported by a hunt detection
type CustomerType string

const (
	CustomerContactless CustomerType = "CLESS"
	CustomerBarcode     CustomerType = "BARCODE"
	CustomerMagnetic    CustomerType = "MAGNETIC"
	CustomerOpenPay     CustomerType = "OPENPAY"
)

// PeripheralDDM is the magnetic peripheral reporting raw track bytes
const PeripheralDDM = "DDM"

// Payload keys of a hunt detection event
const (
	PayloadKeyType       = "type"
	PayloadKeyPeripheral = "peripheral"
	PayloadKeyATR        = "atr"
	PayloadKeyID         = "id"
	PayloadKeyData       = "data"
	PayloadKeyTrack      = "track"
)

// atrVendorPrefixLen is the length of the vendor header in front of the
// contactless ATR string; readable data starts after it.
const atrVendorPrefixLen = 14

const (
	openPayATR          = "*****"
	openPayReadableData = "0123456789ABCD0123456789ABC"
)

// Tag is the media found by the hunter. Tags are immutable; a new detection
// produces a new Tag.
type Tag struct {
	customerType CustomerType
	peripheral   string
	atr          string
	readableData string
	cardID       int64
	hasCardID    bool
}

// NewContactlessTag builds the tag of a contactless detection
func NewContactlessTag(cardID int64, peripheral, atr string) (Tag, error) {
	if len(atr) < atrVendorPrefixLen {
		return Tag{}, fmt.Errorf("%w: contactless ATR %q shorter than %d characters",
			ErrMalformedEvent, atr, atrVendorPrefixLen)
	}
	return Tag{
		customerType: CustomerContactless,
		cardID:       cardID,
		hasCardID:    true,
		peripheral:   peripheral,
		atr:          atr,
		readableData: atr[atrVendorPrefixLen:],
	}, nil
}

// CustomerType returns the media kind
func (t Tag) CustomerType() CustomerType { return t.customerType }

// CardID returns the contactless card id, ok is false for other media
func (t Tag) CardID() (id int64, ok bool) { return t.cardID, t.hasCardID }

// Peripheral returns the reporting peripheral
func (t Tag) Peripheral() string { return t.peripheral }

// ATR returns the raw ATR or media data string
func (t Tag) ATR() string { return t.atr }

// ReadableData returns the application-level data of the media
func (t Tag) ReadableData() string { return t.readableData }

func (t Tag) String() string {
	if t.hasCardID {
		return fmt.Sprintf("Tag{type=%s id=%d peripheral=%s atr=%s}", t.customerType, t.cardID, t.peripheral, t.atr)
	}
	return fmt.Sprintf("Tag{type=%s peripheral=%s atr=%s}", t.customerType, t.peripheral, t.atr)
}

// DecodeTag decodes a hunt detection payload. Unknown media types and
// missing fields are rejected with ErrMalformedEvent.
func DecodeTag(data Payload) (Tag, error) {
	customerType, _ := data[PayloadKeyType].(string)
	peripheral, _ := data[PayloadKeyPeripheral].(string)

	switch CustomerType(customerType) {
	case CustomerContactless:
		atr, ok := data[PayloadKeyATR].(string)
		if !ok {
			return Tag{}, fmt.Errorf("%w: contactless event without ATR", ErrMalformedEvent)
		}
		id, err := payloadInt64(data, PayloadKeyID)
		if err != nil {
			return Tag{}, err
		}
		return NewContactlessTag(id, peripheral, atr)

	case CustomerBarcode:
		barcode, ok := data[PayloadKeyData].(string)
		if !ok {
			return Tag{}, fmt.Errorf("%w: barcode event without data", ErrMalformedEvent)
		}
		return Tag{customerType: CustomerBarcode, peripheral: peripheral, atr: barcode, readableData: barcode}, nil

	case CustomerMagnetic:
		track, err := magneticTrack(data, peripheral)
		if err != nil {
			return Tag{}, err
		}
		return Tag{customerType: CustomerMagnetic, peripheral: peripheral, atr: track, readableData: track}, nil

	case CustomerOpenPay:
		return Tag{
			customerType: CustomerOpenPay,
			peripheral:   peripheral,
			atr:          openPayATR,
			readableData: openPayReadableData,
		}, nil

	default:
		return Tag{}, fmt.Errorf("%w: unknown customer type %q", ErrMalformedEvent, customerType)
	}
}

// magneticTrack reads the track as raw bytes for DDM peripherals and as a string otherwise
func magneticTrack(data Payload, peripheral string) (string, error) {
	if peripheral == PeripheralDDM {
		raw, ok := data[PayloadKeyTrack].([]byte)
		if !ok {
			return "", fmt.Errorf("%w: DDM track is not a byte array", ErrMalformedEvent)
		}
		return strings.ToUpper(hex.EncodeToString(raw)), nil
	}
	track, ok := data[PayloadKeyTrack].(string)
	if !ok {
		return "", fmt.Errorf("%w: magnetic event without track", ErrMalformedEvent)
	}
	return track, nil
}

// payloadInt64 accepts the integer encodings produced by the drivers and the
// JSON bridge (float64)
func payloadInt64(data Payload, key string) (int64, error) {
	switch v := data[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%w: %s is not an integer: %v", ErrMalformedEvent, key, v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: missing or invalid %s", ErrMalformedEvent, key)
	}
}
