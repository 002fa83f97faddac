package pkg

import "errors"

// Driver and transport errors.
var (
	// ErrOutOfRange indicates an address outside the device capacity.
	ErrOutOfRange = errors.New("address out of range")

	// ErrBus indicates a transport-level failure.
	ErrBus = errors.New("bus error")

	// ErrNAK indicates the device did not acknowledge its address.
	ErrNAK = errors.New("NAK received")

	// ErrWriteProtected indicates a write that completed implausibly fast.
	// The classification is a timing heuristic, not a device status bit.
	ErrWriteProtected = errors.New("device appears write protected")

	// ErrShortTransfer indicates fewer bytes were moved than requested.
	ErrShortTransfer = errors.New("short transfer")

	// ErrTimeout indicates a device did not become ready in time.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrTransferTooLarge indicates a single transaction exceeds a transport or page limit.
	ErrTransferTooLarge = errors.New("transfer too large")

	// ErrNoDevice indicates the bus or device node is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrClosed indicates use of a closed resource.
	ErrClosed = errors.New("closed")

	// ErrProtocol indicates a loader protocol violation.
	ErrProtocol = errors.New("protocol error")
)

// TransferStatus represents the completion status of a driver transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess        TransferStatus = iota // Transfer completed
	TransferStatusBusError                             // Transport failed
	TransferStatusWriteProtected                       // Write rejected (heuristic)
	TransferStatusTimeout                              // Completion polling timed out
	TransferStatusShort                                // Fewer bytes than requested
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusBusError:
		return "bus error"
	case TransferStatusWriteProtected:
		return "write protected"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusShort:
		return "short"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusBusError:
		return ErrBus
	case TransferStatusWriteProtected:
		return ErrWriteProtected
	case TransferStatusTimeout:
		return ErrTimeout
	default:
		return ErrShortTransfer
	}
}

// StatusOf classifies err as a TransferStatus.
func StatusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrWriteProtected):
		return TransferStatusWriteProtected
	case errors.Is(err, ErrTimeout):
		return TransferStatusTimeout
	case errors.Is(err, ErrBus), errors.Is(err, ErrNAK):
		return TransferStatusBusError
	default:
		return TransferStatusShort
	}
}
