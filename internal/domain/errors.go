// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrDeploymentNotFound = errors.New("deployment not found")
var ErrDeploymentExists = errors.New("deployment already exists")
var ErrDeploymentNotRestartable = errors.New("deployment is not in a restartable state")
var ErrConflict = errors.New("concurrent write conflict")
var ErrStoreUnavailable = errors.New("state store unavailable")
var ErrInvalidSiteID = errors.New("invalid site id")
var ErrInvalidStepNum = errors.New("invalid step number")
