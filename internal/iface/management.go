package iface

import (
	"sync"

	"github.com/roach88/icrepl/internal/compiler"
)

// managementDID is the subset of the management canister interface that
// scripts use.
const managementDID = `
type canister_id = principal;
type wasm_module = blob;
type log_visibility = variant { controllers; public };
type canister_settings = record {
  controllers : opt vec principal;
  compute_allocation : opt nat;
  memory_allocation : opt nat;
  freezing_threshold : opt nat;
  reserved_cycles_limit : opt nat;
  log_visibility : opt log_visibility;
  wasm_memory_limit : opt nat;
};
type definite_canister_settings = record {
  controllers : vec principal;
  compute_allocation : nat;
  memory_allocation : nat;
  freezing_threshold : nat;
  reserved_cycles_limit : nat;
  log_visibility : log_visibility;
  wasm_memory_limit : nat;
};
type canister_install_mode = variant {
  install;
  reinstall;
  upgrade : opt record { skip_pre_upgrade : opt bool };
};
type canister_status_result = record {
  status : variant { running; stopping; stopped };
  settings : definite_canister_settings;
  module_hash : opt blob;
  memory_size : nat;
  cycles : nat;
  reserved_cycles : nat;
  idle_cycles_burned_per_day : nat;
};
service ic : {
  create_canister : (record { settings : opt canister_settings; sender_canister_version : opt nat64 }) -> (record { canister_id : canister_id });
  update_settings : (record { canister_id : principal; settings : canister_settings; sender_canister_version : opt nat64 }) -> ();
  install_code : (record { mode : canister_install_mode; canister_id : canister_id; wasm_module : wasm_module; arg : blob; sender_canister_version : opt nat64 }) -> ();
  uninstall_code : (record { canister_id : canister_id; sender_canister_version : opt nat64 }) -> ();
  start_canister : (record { canister_id : canister_id }) -> ();
  stop_canister : (record { canister_id : canister_id }) -> ();
  canister_status : (record { canister_id : canister_id }) -> (canister_status_result);
  delete_canister : (record { canister_id : canister_id }) -> ();
  deposit_cycles : (record { canister_id : canister_id }) -> ();
  raw_rand : () -> (blob);
  provisional_create_canister_with_cycles : (record { amount : opt nat; settings : opt canister_settings; specified_id : opt canister_id; sender_canister_version : opt nat64 }) -> (record { canister_id : canister_id });
  provisional_top_up_canister : (record { canister_id : canister_id; amount : nat }) -> ();
}
`

var management = sync.OnceValue(func() *CanisterInfo {
	iface, err := compiler.ParseDID(managementDID)
	if err != nil {
		panic("management canister interface: " + err.Error())
	}
	return &CanisterInfo{Source: managementDID, Interface: iface}
})

// Management returns the built-in interface of the management canister.
func Management() *CanisterInfo { return management() }

// CanisterIDArg reports whether a management method routes to the canister
// named by the canister_id field of its argument.
func CanisterIDArg(method string) bool {
	switch method {
	case "create_canister", "provisional_create_canister_with_cycles", "raw_rand":
		return false
	}
	_, ok := Management().Interface.Method(method)
	return ok
}
