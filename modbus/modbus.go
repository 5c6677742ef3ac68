// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol vocabulary shared by the transports:
// the PDU, function codes and exception codes.
package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// Exception Codes
const (
	ExceptionCodeIllegalFunction        = 0x01
	ExceptionCodeIllegalDataAddress     = 0x02
	ExceptionCodeIllegalDataValue       = 0x03
	ExceptionCodeServerDeviceFailure    = 0x04
	ExceptionCodeGatewayPathUnavailable = 0x0A
)

// Register limits per request.
const (
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123
	MaxAddress        = 65535
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&0x80 != 0
}

// Exception builds the exception response for funcCode.
func Exception(funcCode byte, code byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}

// ExceptionError is returned by clients when a slave answers with an exception.
type ExceptionError struct {
	FunctionCode  byte
	ExceptionCode byte
}

func (e *ExceptionError) Error() string {
	var name string
	switch e.ExceptionCode {
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		name = "server device failure"
	case ExceptionCodeGatewayPathUnavailable:
		name = "gateway path unavailable"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", e.ExceptionCode, name, e.FunctionCode&0x7F)
}

// CheckResponse returns an *ExceptionError if resp is an exception for req,
// or an error if the function codes do not match.
func CheckResponse(req, resp ProtocolDataUnit) error {
	if resp.FunctionCode == req.FunctionCode|0x80 {
		var code byte
		if len(resp.Data) > 0 {
			code = resp.Data[0]
		}
		return &ExceptionError{FunctionCode: resp.FunctionCode, ExceptionCode: code}
	}
	if resp.FunctionCode != req.FunctionCode {
		return fmt.Errorf("modbus: response function code '%v' does not match request '%v'", resp.FunctionCode, req.FunctionCode)
	}
	return nil
}
